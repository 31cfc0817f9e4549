package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Service runs every enrichment oracle over one chat model: titles, notes,
// search queries, answers, and interest summaries. Each call is a single
// system+user exchange expecting a JSON object back.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *log.Logger

	excerptLimit int
}

// NewService compiles the prompt chain over the given chat model.
func NewService(ctx context.Context, chatModel model.ChatModel, excerptLimit int, logger *log.Logger) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile oracle chain: %w", err)
	}

	if excerptLimit <= 0 {
		excerptLimit = 6000
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		logger:       logger,
		excerptLimit: excerptLimit,
	}, nil
}

func (s *Service) invoke(ctx context.Context, system, query string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": system,
		"query":  query,
	})
	if err != nil {
		return "", fmt.Errorf("oracle call failed: %w", err)
	}
	return response.Content, nil
}

// GenerateTitle produces a short title for the conversation so far.
func (s *Service) GenerateTitle(ctx context.Context, transcript string) (string, error) {
	query := fmt.Sprintf(
		"You generate short, punchy titles (3-8 words) for recorded conversations. "+
			"No emojis or quotes. Return JSON with a single field: {\"title\": \"<title>\"}.\n"+
			"Transcript excerpt:\n%s",
		s.excerpt(transcript),
	)

	content, err := s.invoke(ctx, "Return only valid JSON with the title field.", query)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Title string `json:"title"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		return "", fmt.Errorf("title response was not valid JSON: %w", err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return "", fmt.Errorf("title missing in oracle response")
	}
	return title, nil
}

// GenerateInsights produces the ordered note bullets for an insight entry.
func (s *Service) GenerateInsights(ctx context.Context, transcript, interests string) ([]string, error) {
	if interests == "" {
		interests = "not provided"
	}
	query := fmt.Sprintf(
		"You act as a live note taker.\n"+
			"Given transcript excerpts and user interest signals, produce "+
			"notes: 3-5 concise bullet phrases of key points.\n"+
			"Return JSON: {\"notes\": [..]}.\n"+
			"User interests: %s\n"+
			"Transcript excerpt:\n%s",
		interests,
		s.excerpt(transcript),
	)

	content, err := s.invoke(ctx, "Return only valid JSON with the notes field.", query)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Notes []string `json:"notes"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		return nil, fmt.Errorf("insights response was not a well-formed list: %w", err)
	}
	if parsed.Notes == nil {
		return nil, fmt.Errorf("insights response was not a well-formed list")
	}

	notes := make([]string, 0, len(parsed.Notes))
	for _, note := range parsed.Notes {
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			notes = append(notes, trimmed)
		}
	}
	return notes, nil
}

// GenerateSearchQuery derives one short discovery query from the latest
// transcript excerpt.
func (s *Service) GenerateSearchQuery(ctx context.Context, transcript, interests string) (string, error) {
	if interests == "" {
		interests = "not provided"
	}
	query := fmt.Sprintf(
		"Derive one short search string (no hashtags, no quotes) that would "+
			"surface recent posts related to this conversation.\n"+
			"Return JSON: {\"query\": \"<search string>\"}.\n"+
			"User interests: %s\n"+
			"Transcript excerpt:\n%s",
		interests,
		s.excerpt(transcript),
	)

	content, err := s.invoke(ctx, "Return only valid JSON with the query field.", query)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Query string `json:"query"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		return "", fmt.Errorf("search query response was not valid JSON: %w", err)
	}
	return strings.TrimSpace(parsed.Query), nil
}

// AnswerQuestion answers a listener question against the full transcript.
func (s *Service) AnswerQuestion(ctx context.Context, question, transcript, interests string) (string, error) {
	if interests == "" {
		interests = "not provided"
	}
	query := fmt.Sprintf(
		"Answer the question using only what the transcript supports. Be "+
			"direct and conversational; two or three sentences.\n"+
			"Return JSON: {\"answer\": \"<answer>\"}.\n"+
			"User interests: %s\n"+
			"Question: %s\n"+
			"Transcript:\n%s",
		interests,
		question,
		s.excerpt(transcript),
	)

	content, err := s.invoke(ctx, "Return only valid JSON with the answer field.", query)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		return "", fmt.Errorf("answer response was not valid JSON: %w", err)
	}

	answer := strings.TrimSpace(parsed.Answer)
	if answer == "" {
		return "", fmt.Errorf("answer missing in oracle response")
	}
	return answer, nil
}

// SummarizeInterests condenses raw liked-post texts into a theme summary for
// the interest profile.
func (s *Service) SummarizeInterests(ctx context.Context, likes string) (string, error) {
	query := fmt.Sprintf(
		"Summarize the recurring themes in these liked posts as one short "+
			"paragraph describing what this person cares about.\n"+
			"Return JSON: {\"themes\": \"<paragraph>\"}.\n"+
			"Liked posts:\n%s",
		s.excerpt(likes),
	)

	content, err := s.invoke(ctx, "Return only valid JSON with the themes field.", query)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Themes string `json:"themes"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		return "", fmt.Errorf("themes response was not valid JSON: %w", err)
	}
	return strings.TrimSpace(parsed.Themes), nil
}

func (s *Service) excerpt(text string) string {
	if len(text) <= s.excerptLimit {
		return text
	}
	// Back up to a rune boundary so the cut never splits a UTF-8 sequence.
	cut := s.excerptLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// unmarshalJSONBlock parses content as JSON, falling back to the outermost
// brace pair when the model wrapped the object in prose.
func unmarshalJSONBlock(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object in oracle response")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
