package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/AutoPoster/internal/slots"
)

// PlannedPost is a one-off post that a run at Plan.Now would publish.
type PlannedPost struct {
	PostID      int64
	AccountID   int64
	Platform    string
	ScheduledAt time.Time
}

// PlannedSlot is a recurring slot due at Plan.Now.
type PlannedSlot struct {
	AccountID int64
	Platform  string
	Slot      time.Time
	Local     string
	Processed bool
	Note      string
}

// Plan is what RunOnce would attempt, computed without claiming or publishing.
type Plan struct {
	Now    time.Time
	OneOff []PlannedPost
	Slots  []PlannedSlot
}

// DryRun computes the work of the next tick. Batch limits are applied but
// nothing is written.
func (d *Dispatcher) DryRun(ctx context.Context) (*Plan, error) {
	now := d.clock.Now().UTC()
	plan := &Plan{Now: now}

	posts, err := d.store.ListDuePosts(ctx, now, d.opts.DuePostLimit)
	if err != nil {
		return nil, fmt.Errorf("listing due posts: %w", err)
	}
	for _, p := range posts {
		pp := PlannedPost{PostID: p.ID, AccountID: p.AccountID, Platform: string(p.Platform)}
		if p.ScheduledAt != nil {
			pp.ScheduledAt = *p.ScheduledAt
		}
		plan.OneOff = append(plan.OneOff, pp)
	}

	profiles, err := d.store.ListEnabledProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing automation profiles: %w", err)
	}
	for _, profile := range profiles {
		account, err := d.store.GetAccount(ctx, profile.AccountID)
		if err != nil {
			return nil, fmt.Errorf("loading account %d: %w", profile.AccountID, err)
		}
		if account == nil || !account.IsActive {
			plan.Slots = append(plan.Slots, PlannedSlot{AccountID: profile.AccountID, Note: "account inactive"})
			continue
		}

		schedule := slots.Schedule{Times: account.Schedule.Times, Timezone: account.Schedule.Timezone}
		if len(schedule.Times) == 0 && len(d.opts.DefaultTimes) > 0 {
			schedule.Times = d.opts.DefaultTimes
		}
		due, err := slots.DueSlots(now, schedule, d.opts.ToleranceWindow)
		if err != nil {
			plan.Slots = append(plan.Slots, PlannedSlot{AccountID: account.ID, Platform: string(account.Platform), Note: err.Error()})
			continue
		}
		loc, _ := slots.LoadZone(schedule.Timezone)

		batch := max(profile.BatchSize, 1)
		if len(due) > batch {
			due = due[:batch]
		}
		for _, slot := range due {
			processed, err := d.guard.AlreadyProcessed(ctx, account.ID, slot)
			if err != nil {
				return nil, err
			}
			plan.Slots = append(plan.Slots, PlannedSlot{
				AccountID: account.ID,
				Platform:  string(account.Platform),
				Slot:      slot,
				Local:     slot.In(loc).Format("2006-01-02 15:04 MST"),
				Processed: processed,
			})
		}
	}
	return plan, nil
}
