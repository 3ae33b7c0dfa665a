package report

import (
	"time"
)

// Recorder appends outcomes in the order units are processed and notifies
// an optional observer for each one.
type Recorder struct {
	result  *RunResult
	observe func(Outcome)
	start   time.Time
	now     func() time.Time
}

// NewRecorder starts recording a run. now is used for the duration; observe
// may be nil.
func NewRecorder(runID string, now func() time.Time, observe func(Outcome)) *Recorder {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Recorder{
		result:  &RunResult{RunID: runID, StartedAt: start},
		observe: observe,
		start:   start,
		now:     now,
	}
}

// Record appends one outcome.
func (r *Recorder) Record(o Outcome) {
	r.result.Outcomes = append(r.result.Outcomes, o)
	if r.observe != nil {
		r.observe(o)
	}
}

// SetTotalProfiles records how many enabled profiles the run considered.
func (r *Recorder) SetTotalProfiles(n int) {
	r.result.TotalProfiles = n
}

// Finish stamps the duration and returns the result. It may be called more
// than once; each call refreshes the duration.
func (r *Recorder) Finish() *RunResult {
	r.result.Duration = r.now().Sub(r.start)
	return r.result
}
