// Package dispatch runs one scheduling tick: due one-off posts first, then
// the recurring slots of every enabled automation profile.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/generate"
	"github.com/TobiSchelling/AutoPoster/internal/guard"
	"github.com/TobiSchelling/AutoPoster/internal/metrics"
	"github.com/TobiSchelling/AutoPoster/internal/publish"
	"github.com/TobiSchelling/AutoPoster/internal/report"
	"github.com/TobiSchelling/AutoPoster/internal/slots"
	"github.com/TobiSchelling/AutoPoster/internal/trends"
)

var log = logrus.WithField("component", "dispatch")

// Store is the persistence the dispatcher needs.
type Store interface {
	guard.Store
	ListDuePosts(ctx context.Context, now time.Time, limit int) ([]database.Post, error)
	ClaimPost(ctx context.Context, postID int64, runID string, now time.Time) (bool, error)
	GetAccount(ctx context.Context, accountID int64) (*database.Account, error)
	ListEnabledProfiles(ctx context.Context) ([]database.AutomationProfile, error)
}

// Generator produces post content for a slot.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Content, error)
}

// TrendSource finds a topic for a niche. A nil item means no topic.
type TrendSource interface {
	Topic(ctx context.Context, niche string) (*trends.Item, error)
}

// Options tune a dispatcher.
type Options struct {
	ToleranceWindow time.Duration
	DuePostLimit    int
	StaleClaimAfter time.Duration
	DefaultTimes    []string
}

// Dispatcher drives one run at a time. It keeps no state between runs.
type Dispatcher struct {
	store     Store
	guard     *guard.Guard
	generator Generator
	trends    TrendSource
	publisher publish.Publisher
	clock     slots.Clock
	opts      Options
	newRunID  func() string
}

// New creates a dispatcher. trends may be nil.
func New(store Store, gen Generator, ts TrendSource, pub publish.Publisher, clock slots.Clock, opts Options) *Dispatcher {
	if clock == nil {
		clock = slots.SystemClock{}
	}
	if opts.ToleranceWindow <= 0 {
		opts.ToleranceWindow = 6 * time.Minute
	}
	if opts.DuePostLimit <= 0 {
		opts.DuePostLimit = 25
	}
	return &Dispatcher{
		store:     store,
		guard:     guard.New(store, clock.Now),
		generator: gen,
		trends:    ts,
		publisher: pub,
		clock:     clock,
		opts:      opts,
		newRunID:  uuid.NewString,
	}
}

// RunOnce performs one tick. Per-unit failures become outcomes; only a
// failure to list work aborts the run, in which case the partial result is
// returned together with the error.
func (d *Dispatcher) RunOnce(ctx context.Context) (*report.RunResult, error) {
	runID := d.newRunID()
	logger := log.WithField("run_id", runID)
	rec := report.NewRecorder(runID, d.clock.Now, func(o report.Outcome) {
		metrics.ObserveOutcome(string(o.Kind), string(o.Status))
	})
	now := d.clock.Now().UTC()
	logger.WithField("now", database.FormatTime(now)).Info("Dispatch run started")

	d.reapStaleClaims(ctx, logger)

	err := d.runOneOff(ctx, runID, now, rec, logger)
	if err == nil {
		err = d.runRecurring(ctx, runID, now, rec, logger)
	}

	result := rec.Finish()
	metrics.ObserveRun(result.Duration, err)
	if err != nil {
		logger.WithError(err).Error("Dispatch run aborted")
		return result, err
	}

	s := result.Summary()
	logger.WithFields(logrus.Fields{
		"profiles":   s.TotalProfiles,
		"successful": s.Successful,
		"failed":     s.Failed,
		"skipped":    s.Skipped,
		"duration":   result.Duration.String(),
	}).Info("Dispatch run complete")
	return result, nil
}

func (d *Dispatcher) reapStaleClaims(ctx context.Context, logger *logrus.Entry) {
	if d.opts.StaleClaimAfter <= 0 {
		return
	}
	n, err := d.guard.ReapStaleClaims(ctx, d.opts.StaleClaimAfter)
	if err != nil {
		logger.WithError(err).Warn("Could not reap stale claims")
		return
	}
	metrics.AddReaped(n)
}

func (d *Dispatcher) finalizeFailed(ctx context.Context, postID int64, msg string, content *generate.Content, score *float64) error {
	r := database.PostResult{Status: database.StatusFailed, ErrorMessage: &msg, PredictedScore: score}
	if content != nil {
		r.Content = &content.Text
		r.Hashtags = content.Hashtags
		r.MediaURLs = content.MediaURLs
	}
	return d.guard.Finalize(ctx, postID, r)
}

func errorMessage(prefix string, err error) string {
	return fmt.Sprintf("%s: %v", prefix, err)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
