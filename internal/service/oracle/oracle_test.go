package oracle

import (
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

func TestUnmarshalJSONBlockClean(t *testing.T) {
	var parsed struct {
		Title string `json:"title"`
	}
	if err := unmarshalJSONBlock(`{"title":"Morning Standup Recap"}`, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed.Title != "Morning Standup Recap" {
		t.Errorf("unexpected title %q", parsed.Title)
	}
}

func TestUnmarshalJSONBlockWrappedInProse(t *testing.T) {
	content := "Sure! Here is the JSON you asked for:\n```json\n{\"notes\": [\"first\", \"second\"]}\n```\nHope that helps."
	var parsed struct {
		Notes []string `json:"notes"`
	}
	if err := unmarshalJSONBlock(content, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(parsed.Notes) != 2 || parsed.Notes[0] != "first" {
		t.Errorf("unexpected notes %v", parsed.Notes)
	}
}

func TestUnmarshalJSONBlockNoObject(t *testing.T) {
	var parsed struct {
		Query string `json:"query"`
	}
	if err := unmarshalJSONBlock("no json here at all", &parsed); err == nil {
		t.Fatal("expected error for content without JSON")
	}
}

func TestUnmarshalJSONBlockStillBroken(t *testing.T) {
	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := unmarshalJSONBlock(`prefix {"answer": "trunc`, &parsed); err == nil {
		t.Fatal("expected error for unparseable braces")
	}
}

func TestExcerptTruncates(t *testing.T) {
	svc := &Service{excerptLimit: 10, logger: log.New(io.Discard)}

	short := "tiny"
	if got := svc.excerpt(short); got != short {
		t.Errorf("short text should pass through, got %q", got)
	}

	long := strings.Repeat("a", 50)
	if got := svc.excerpt(long); len(got) != 10 {
		t.Errorf("expected 10 chars, got %d", len(got))
	}
}

func TestExcerptNeverSplitsRunes(t *testing.T) {
	svc := &Service{excerptLimit: 10, logger: log.New(io.Discard)}

	// "日" is three bytes; a limit of 10 lands mid-rune and must back up.
	text := strings.Repeat("日", 8)
	got := svc.excerpt(text)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt produced invalid UTF-8: %q", got)
	}
	if len(got) != 9 {
		t.Errorf("expected cut at the previous rune boundary (9 bytes), got %d", len(got))
	}
}
