package insight

import insightmodel "github.com/listening-buddy/backend/internal/model/insight"

// Outcome distinguishes "produced a value", "produced nothing", and "failed"
// for the optional enrichment steps, so callers pick their fallback behavior
// deliberately.
type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomeValue
	OutcomeFailed
)

// ArtifactResult is the outcome of one artifact discovery attempt.
type ArtifactResult struct {
	Query     string
	Artifacts []insightmodel.Artifact
	Outcome   Outcome
	Err       error
}
