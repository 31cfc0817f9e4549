package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/listening-buddy/backend/internal/config"
	"github.com/listening-buddy/backend/internal/integration"
	"github.com/listening-buddy/backend/internal/model/insight"
)

// Client queries the X API for recent content and liked posts. All calls are
// best-effort from the caller's point of view; the insight loop treats
// failures as "no artifacts".
type Client struct {
	cfg          config.XConfig
	integrations *integration.Store
	httpClient   *http.Client
	logger       *log.Logger
}

// NewClient builds a discovery client over the integration credentials.
func NewClient(cfg config.XConfig, integrations *integration.Store, logger *log.Logger) *Client {
	return &Client{
		cfg:          cfg,
		integrations: integrations,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

type searchResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// SearchRecent fetches posts matching query inside [start, end], capped at
// max results, and maps them onto artifacts.
func (c *Client) SearchRecent(ctx context.Context, query string, start, end time.Time, max int) ([]insight.Artifact, error) {
	token := c.integrations.LoadX().Token()
	if token == "" {
		return nil, fmt.Errorf("x integration not connected")
	}
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if max < 10 {
		// The recent-search endpoint rejects anything below 10.
		max = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start_time", start.UTC().Format(time.RFC3339))
	params.Set("end_time", end.UTC().Format(time.RFC3339))
	params.Set("max_results", strconv.Itoa(max))

	endpoint := c.cfg.APIBaseURL + "/tweets/search/recent?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recent search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("recent search read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recent search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("recent search response malformed: %w", err)
	}

	artifacts := make([]insight.Artifact, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		source, _ := json.Marshal(item)
		artifacts = append(artifacts, insight.Artifact{
			Title:  headline(item.Text),
			URL:    "https://x.com/i/web/status/" + item.ID,
			Source: source,
		})
	}
	return artifacts, nil
}

type likesResponse struct {
	Data []struct {
		Text string `json:"text"`
	} `json:"data"`
}

// FetchLikedTexts returns the text of the connected user's recent likes, used
// to seed the interest profile.
func (c *Client) FetchLikedTexts(ctx context.Context, max int) ([]string, error) {
	creds := c.integrations.LoadX()
	token := creds.Token()
	if token == "" {
		return nil, fmt.Errorf("x integration not connected")
	}

	userID, err := resolveUserID(creds.User)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(max))

	endpoint := c.cfg.APIBaseURL + "/users/" + userID + "/liked_tweets?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build likes request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("likes fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("likes fetch read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("likes fetch returned status %d", resp.StatusCode)
	}

	var parsed likesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("likes response malformed: %w", err)
	}

	texts := make([]string, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	return texts, nil
}

func resolveUserID(user json.RawMessage) (string, error) {
	if len(user) == 0 {
		return "", fmt.Errorf("no connected user on x integration")
	}

	var wrapped struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(user, &wrapped); err == nil && wrapped.Data.ID != "" {
		return wrapped.Data.ID, nil
	}

	var flat struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(user, &flat); err == nil && flat.ID != "" {
		return flat.ID, nil
	}
	return "", fmt.Errorf("connected user record has no id")
}

// headline trims a post text down to an artifact title.
func headline(text string) string {
	const limit = 80
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "…"
}
