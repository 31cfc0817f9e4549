package audio

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/listening-buddy/backend/internal/service/relay"
)

const (
	readDeadline  = 120 * time.Second
	writeDeadline = 10 * time.Second
)

// closeReasonNoCredential is the documented reason a session is refused when
// the upstream credential is missing.
const closeReasonNoCredential = "server missing API key"

// Handler accepts capture-client websocket connections and hands each one to
// a relay bridge.
type Handler struct {
	bridge   *relay.Bridge
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// New creates the audio websocket handler.
func New(bridge *relay.Bridge, logger *log.Logger) *Handler {
	return &Handler{
		bridge: bridge,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the relay endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/audio", h.handleAudio)
}

// handleAudio runs one relay session on the upgraded connection. Connections
// are accepted unconditionally; a missing upstream credential closes the
// socket immediately with the documented reason.
func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if !h.bridge.Configured() {
		h.logger.Error("refusing session: recognizer credential missing")
		deadline := time.Now().Add(writeDeadline)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReasonNoCredential)
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		return
	}

	client := newWSClient(conn)
	if err := h.bridge.Run(r.Context(), client); err != nil {
		h.logger.Warn("relay session ended with error", "error", err)
	}
}

// wsClient adapts a gorilla connection onto the relay's client interface.
// The bridge's owner loop is the only event writer, but close racing a write
// still wants the mutex.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn}
}

// ReadAudio returns the next binary frame, skipping any text frames the
// client sends (keepalives and the like).
func (c *wsClient) ReadAudio() ([]byte, error) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsClient) WriteEvent(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}
