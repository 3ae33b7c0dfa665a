// Package guard keeps each recurring slot to a single terminal outcome.
//
// A slot is identified by (account, scheduled instant). Before any content
// is generated the run inserts the automation post row claimed by its run
// id; the unique index on (account_id, scheduled_at) makes that insert the
// point where concurrent runs are serialized.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/database"
)

// AbandonedReason is stored on claims reaped after a crashed run.
const AbandonedReason = "claim abandoned"

var log = logrus.WithField("component", "guard")

// Store is the subset of persistence the guard needs.
type Store interface {
	HasTerminalPost(ctx context.Context, accountID int64, scheduledAt time.Time) (bool, error)
	InsertPost(ctx context.Context, p database.NewPost) (int64, error)
	UpdatePostStatus(ctx context.Context, postID int64, r database.PostResult) error
	FailStaleClaims(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// Guard answers "was this slot handled" and hands out slot claims.
type Guard struct {
	store Store
	now   func() time.Time
}

// New returns a guard over store. now defaults to time.Now.
func New(store Store, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, now: now}
}

// ClaimRequest describes the automation post a run is about to produce.
type ClaimRequest struct {
	RunID     string
	AccountID int64
	Platform  database.Platform
	Slot      time.Time
}

// AlreadyProcessed reports whether the slot already has a posted or failed
// post. A storage error is returned as is; callers treat it as a failure
// for that slot rather than guessing.
func (g *Guard) AlreadyProcessed(ctx context.Context, accountID int64, slot time.Time) (bool, error) {
	done, err := g.store.HasTerminalPost(ctx, accountID, slot)
	if err != nil {
		return false, fmt.Errorf("checking slot %s for account %d: %w", database.FormatTime(slot), accountID, err)
	}
	return done, nil
}

// Claim inserts the slot's automation post in status scheduled, owned by
// req.RunID. claimed is false when another row already holds the slot.
func (g *Guard) Claim(ctx context.Context, req ClaimRequest) (postID int64, claimed bool, err error) {
	slot := req.Slot.UTC()
	claimedAt := g.now().UTC()
	runID := req.RunID

	postID, err = g.store.InsertPost(ctx, database.NewPost{
		AccountID:   req.AccountID,
		Platform:    req.Platform,
		Status:      database.StatusScheduled,
		Origin:      database.OriginAutomation,
		ScheduledAt: &slot,
		ClaimedBy:   &runID,
		ClaimedAt:   &claimedAt,
	})
	if errors.Is(err, database.ErrSlotTaken) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claiming slot %s for account %d: %w", database.FormatTime(slot), req.AccountID, err)
	}
	return postID, true, nil
}

// Finalize records the terminal outcome of a claimed slot.
func (g *Guard) Finalize(ctx context.Context, postID int64, r database.PostResult) error {
	if err := g.store.UpdatePostStatus(ctx, postID, r); err != nil {
		return fmt.Errorf("finalizing post %d: %w", postID, err)
	}
	return nil
}

// ReapStaleClaims fails claims older than olderThan. Their slots are never
// republished; the failed row keeps them out of later runs.
func (g *Guard) ReapStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := g.now().UTC().Add(-olderThan)
	n, err := g.store.FailStaleClaims(ctx, cutoff, AbandonedReason)
	if err != nil {
		return 0, fmt.Errorf("reaping stale claims: %w", err)
	}
	if n > 0 {
		log.WithField("count", n).WithField("cutoff", database.FormatTime(cutoff)).Warn("Failed abandoned claims")
	}
	return n, nil
}
