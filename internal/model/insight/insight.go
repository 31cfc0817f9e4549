package insight

import (
	"encoding/json"
	"time"
)

// Artifact is one externally discovered item attached to an insight entry.
type Artifact struct {
	Title  string          `json:"title"`
	URL    string          `json:"url"`
	Source json.RawMessage `json:"source,omitempty"`
}

// Entry is one timestamped batch of derived content for a session. Entries are
// append-only; the log never rewrites or reorders them.
type Entry struct {
	Timestamp time.Time  `json:"timestamp"`
	Notes     []string   `json:"notes"`
	Artifacts []Artifact `json:"artifacts"`
	Query     string     `json:"query,omitempty"`
}

// SameContent reports whether two entries carry identical notes and artifacts.
// Timestamp and query are deliberately ignored; the log deduplicates on
// content, not on when or how it was produced.
func (e Entry) SameContent(other Entry) bool {
	if len(e.Notes) != len(other.Notes) || len(e.Artifacts) != len(other.Artifacts) {
		return false
	}
	for i := range e.Notes {
		if e.Notes[i] != other.Notes[i] {
			return false
		}
	}
	for i := range e.Artifacts {
		if e.Artifacts[i].Title != other.Artifacts[i].Title || e.Artifacts[i].URL != other.Artifacts[i].URL {
			return false
		}
	}
	return true
}

// InterestProfile is the process-wide cached summary of what the user cares
// about, built from their liked posts. One profile per deployment.
type InterestProfile struct {
	Themes      string    `json:"themes"`
	RawLikes    string    `json:"rawLikes"`
	SampleItems []string  `json:"sampleItems"`
	GeneratedAt time.Time `json:"generatedAt"`
}
