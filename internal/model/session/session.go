package session

import "time"

// Status tracks the lifecycle of a listening session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session is the durable projection of one relay session's state. The owning
// relay bridge is the only writer while the session is active; everything else
// only reads it.
type Session struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds float64    `json:"durationSeconds"`
	Status          Status     `json:"status"`
	SegmentCount    int        `json:"segmentCount"`
	Title           string     `json:"title,omitempty"`
}

// Touch records progress for one finalized segment.
func (s *Session) Touch(now time.Time) {
	s.SegmentCount++
	ended := now
	s.EndedAt = &ended
	s.DurationSeconds = now.Sub(s.StartedAt).Seconds()
}

// Finalize closes the session record. Duration never goes backwards.
func (s *Session) Finalize(now time.Time) {
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}
	ended := now
	s.EndedAt = &ended
	s.DurationSeconds = now.Sub(s.StartedAt).Seconds()
	s.Status = StatusCompleted
}
