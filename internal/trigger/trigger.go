// Package trigger invokes a dispatch run on a fixed interval in-process,
// for deployments without an external cron calling /run.
package trigger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/report"
)

var log = logrus.WithField("component", "trigger")

// Runner performs one dispatch tick.
type Runner interface {
	RunOnce(ctx context.Context) (*report.RunResult, error)
}

// Ticker calls a Runner every Interval. Ticks never overlap: a tick that
// fires while a run is in progress is dropped.
type Ticker struct {
	Runner   Runner
	Interval time.Duration
	// RunImmediately runs once before the first tick.
	RunImmediately bool

	newTicker func(time.Duration) (<-chan time.Time, func())
}

// Run blocks until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	newTicker := t.newTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) (<-chan time.Time, func()) {
			tk := time.NewTicker(d)
			return tk.C, tk.Stop
		}
	}
	ticks, stop := newTicker(t.Interval)
	defer stop()

	log.WithField("interval", t.Interval.String()).Info("Trigger started")
	if t.RunImmediately {
		t.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("Trigger stopped")
			return nil
		case <-ticks:
			t.tick(ctx)
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := t.Runner.RunOnce(ctx)
	if err != nil {
		// RunOnce already logged the failure; the next tick starts fresh.
		return
	}
	s := result.Summary()
	if s.Failed > 0 {
		log.WithFields(logrus.Fields{"run_id": result.RunID, "failed": s.Failed}).Warn("Run finished with failures")
	}
}
