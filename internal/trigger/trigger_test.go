package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/report"
)

type countingRunner struct {
	calls chan struct{}
	err   error
}

func (c *countingRunner) RunOnce(ctx context.Context) (*report.RunResult, error) {
	c.calls <- struct{}{}
	if c.err != nil {
		return &report.RunResult{}, c.err
	}
	return &report.RunResult{RunID: "r"}, nil
}

func manualTicker(ch chan time.Time) func(time.Duration) (<-chan time.Time, func()) {
	return func(time.Duration) (<-chan time.Time, func()) { return ch, func() {} }
}

func waitCall(t *testing.T, calls chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a run")
	}
}

func TestTickerRunsOnEachTick(t *testing.T) {
	ticks := make(chan time.Time)
	runner := &countingRunner{calls: make(chan struct{}, 10)}
	tk := &Ticker{Runner: runner, Interval: time.Minute, RunImmediately: true, newTicker: manualTicker(ticks)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tk.Run(ctx) }()

	waitCall(t, runner.calls)
	ticks <- time.Now()
	waitCall(t, runner.calls)
	ticks <- time.Now()
	waitCall(t, runner.calls)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not stop after cancel")
	}
}

func TestTickerSurvivesRunErrors(t *testing.T) {
	ticks := make(chan time.Time)
	runner := &countingRunner{calls: make(chan struct{}, 10), err: errors.New("database is locked")}
	tk := &Ticker{Runner: runner, Interval: time.Minute, newTicker: manualTicker(ticks)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tk.Run(ctx)

	ticks <- time.Now()
	waitCall(t, runner.calls)
	ticks <- time.Now()
	waitCall(t, runner.calls)
}
