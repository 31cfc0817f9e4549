package insight

import (
	"testing"
	"time"
)

func TestSameContentIgnoresTimestampAndQuery(t *testing.T) {
	a := Entry{
		Timestamp: time.Now(),
		Notes:     []string{"one", "two"},
		Artifacts: []Artifact{{Title: "t", URL: "u"}},
		Query:     "first query",
	}
	b := Entry{
		Timestamp: a.Timestamp.Add(time.Minute),
		Notes:     []string{"one", "two"},
		Artifacts: []Artifact{{Title: "t", URL: "u"}},
		Query:     "different query",
	}
	if !a.SameContent(b) {
		t.Error("expected entries with equal notes and artifacts to match")
	}
}

func TestSameContentDetectsDifferences(t *testing.T) {
	base := Entry{
		Notes:     []string{"one"},
		Artifacts: []Artifact{{Title: "t", URL: "u"}},
	}

	cases := map[string]Entry{
		"extra note":        {Notes: []string{"one", "two"}, Artifacts: base.Artifacts},
		"changed note":      {Notes: []string{"other"}, Artifacts: base.Artifacts},
		"missing artifact":  {Notes: base.Notes},
		"changed artifact":  {Notes: base.Notes, Artifacts: []Artifact{{Title: "t", URL: "elsewhere"}}},
		"extra artifact":    {Notes: base.Notes, Artifacts: append([]Artifact{{Title: "t", URL: "u"}}, Artifact{Title: "x", URL: "y"})},
	}
	for name, other := range cases {
		if base.SameContent(other) {
			t.Errorf("%s: expected mismatch", name)
		}
	}
}
