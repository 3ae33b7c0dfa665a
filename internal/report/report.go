// Package report accumulates per-unit dispatch outcomes into a run summary.
package report

import (
	"time"
)

// Status is the tag attached to every outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Kind distinguishes the two dispatch passes.
type Kind string

const (
	KindOneOff    Kind = "one_off"
	KindRecurring Kind = "recurring"
)

// Outcome records what happened to one unit of work.
type Outcome struct {
	Kind        Kind       `json:"kind"`
	AccountID   int64      `json:"account_id"`
	Platform    string     `json:"platform,omitempty"`
	PostID      *int64     `json:"post_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Status      Status     `json:"status"`
	Message     string     `json:"message,omitempty"`
	Score       *float64   `json:"predicted_score,omitempty"`
	PostURL     string     `json:"post_url,omitempty"`
}

// Summary is the aggregate view of a run.
type Summary struct {
	TotalProfiles int   `json:"total_profiles"`
	Successful    int   `json:"successful"`
	Failed        int   `json:"failed"`
	Skipped       int   `json:"skipped"`
	DurationMS    int64 `json:"duration_ms"`
}

// Summarize counts outcomes by status. It never looks anywhere but the
// outcomes it is given.
func Summarize(outcomes []Outcome, totalProfiles int, duration time.Duration) Summary {
	s := Summary{TotalProfiles: totalProfiles, DurationMS: duration.Milliseconds()}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Successful++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// RunResult is the transient result of one dispatch invocation.
type RunResult struct {
	RunID         string
	StartedAt     time.Time
	Outcomes      []Outcome
	TotalProfiles int
	Duration      time.Duration
}

// Summary summarizes the outcomes recorded so far.
func (r *RunResult) Summary() Summary {
	return Summarize(r.Outcomes, r.TotalProfiles, r.Duration)
}
