package recognizer

import "encoding/json"

// EventKind is the closed set of upstream message kinds the relay reacts to.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventConfigAck
	EventRecognizedInterim
	EventRecognizedFinal
	EventError
)

// Event is one decoded upstream message.
type Event struct {
	Kind       EventKind
	Transcript string
	Message    string
}

type serverEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Data    struct {
			Transcript string `json:"transcript"`
			IsFinal    bool   `json:"is_final"`
		} `json:"data"`
	} `json:"data"`
	Message string `json:"message"`
}

// DecodeEvent maps a raw upstream frame onto the event set. Anything that does
// not parse, or parses to an unrecognized shape, decodes as EventUnknown so a
// single bad message never kills the stream.
func DecodeEvent(raw []byte) Event {
	var env serverEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{Kind: EventUnknown}
	}

	switch {
	case env.Type == "error" || env.Data.Type == "error":
		msg := env.Message
		if msg == "" {
			msg = env.Data.Message
		}
		return Event{Kind: EventError, Message: msg}
	case env.Type == "config_ack" || env.Data.Type == "config_ack":
		return Event{Kind: EventConfigAck}
	case env.Data.Type == "speech_recognized":
		if env.Data.Data.IsFinal {
			return Event{Kind: EventRecognizedFinal, Transcript: env.Data.Data.Transcript}
		}
		return Event{Kind: EventRecognizedInterim, Transcript: env.Data.Data.Transcript}
	default:
		return Event{Kind: EventUnknown}
	}
}
