package report

// Envelope is the JSON body returned to the invoker of a run.
type Envelope struct {
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Results    []Outcome `json:"results"`
	Summary    *Summary  `json:"summary,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// NewEnvelope renders a finished run. A non-nil runErr produces the error
// envelope carrying whatever results were collected before the failure.
func NewEnvelope(r *RunResult, runErr error) Envelope {
	results := r.Outcomes
	if results == nil {
		results = []Outcome{}
	}
	if runErr != nil {
		return Envelope{
			Error:      runErr.Error(),
			RunID:      r.RunID,
			Results:    results,
			DurationMS: r.Duration.Milliseconds(),
		}
	}
	summary := r.Summary()
	return Envelope{
		Message: "Automation run completed",
		RunID:   r.RunID,
		Results: results,
		Summary: &summary,
	}
}
