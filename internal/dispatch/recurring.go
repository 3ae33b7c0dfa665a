package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/generate"
	"github.com/TobiSchelling/AutoPoster/internal/guard"
	"github.com/TobiSchelling/AutoPoster/internal/publish"
	"github.com/TobiSchelling/AutoPoster/internal/report"
	"github.com/TobiSchelling/AutoPoster/internal/scoring"
	"github.com/TobiSchelling/AutoPoster/internal/slots"
)

// runRecurring walks every enabled profile. A slot failure under the stop
// policy ends the run's remaining recurring work.
func (d *Dispatcher) runRecurring(ctx context.Context, runID string, now time.Time, rec *report.Recorder, logger *logrus.Entry) error {
	profiles, err := d.store.ListEnabledProfiles(ctx)
	if err != nil {
		return fmt.Errorf("listing automation profiles: %w", err)
	}
	rec.SetTotalProfiles(len(profiles))

	for _, profile := range profiles {
		plog := logger.WithField("account_id", profile.AccountID)
		if stop := d.runProfile(ctx, runID, now, profile, rec, plog); stop {
			plog.Warn("Stopping run after failure (error_handling=stop)")
			break
		}
	}
	return nil
}

// runProfile returns true when the profile's stop policy was triggered.
func (d *Dispatcher) runProfile(ctx context.Context, runID string, now time.Time, profile database.AutomationProfile, rec *report.Recorder, logger *logrus.Entry) bool {
	base := report.Outcome{Kind: report.KindRecurring, AccountID: profile.AccountID}

	account, err := d.store.GetAccount(ctx, profile.AccountID)
	if err != nil {
		rec.Record(failed(base, logger, errorMessage("loading account", err)))
		return false
	}
	if account == nil || !account.IsActive {
		rec.Record(failed(base, logger, "account inactive"))
		return false
	}
	base.Platform = string(account.Platform)

	schedule := slots.Schedule{Times: account.Schedule.Times, Timezone: account.Schedule.Timezone}
	if len(schedule.Times) == 0 && len(d.opts.DefaultTimes) > 0 {
		schedule.Times = d.opts.DefaultTimes
	}
	loc, err := slots.LoadZone(schedule.Timezone)
	if err != nil {
		rec.Record(failed(base, logger, errorMessage("invalid schedule", err)))
		return false
	}
	niche := strings.TrimSpace(strOrEmpty(account.Niche))
	if niche == "" {
		rec.Record(failed(base, logger, "account has no niche configured"))
		return false
	}

	due, err := slots.DueSlots(now, schedule, d.opts.ToleranceWindow)
	if err != nil {
		rec.Record(failed(base, logger, errorMessage("invalid schedule", err)))
		return false
	}
	if len(due) == 0 {
		o := base
		o.Status = report.StatusSkipped
		o.Message = "no due slots"
		rec.Record(o)
		return false
	}

	batch := max(profile.BatchSize, 1)
	if len(due) > batch {
		due = due[:batch]
	}

	for _, slot := range due {
		slotLog := logger.WithField("slot", database.FormatTime(slot))
		o := d.runSlot(ctx, runID, slot, loc, account, base, slotLog)
		rec.Record(o)
		if o.Status == report.StatusFailed && profile.ErrorHandling == database.ErrorHandlingStop {
			return true
		}
	}
	return false
}

func (d *Dispatcher) runSlot(ctx context.Context, runID string, slot time.Time, loc *time.Location, account *database.Account, base report.Outcome, logger *logrus.Entry) report.Outcome {
	o := base
	slotAt := slot
	o.ScheduledAt = &slotAt

	done, err := d.guard.AlreadyProcessed(ctx, account.ID, slot)
	if err != nil {
		return failed(o, logger, err.Error())
	}
	if done {
		o.Status = report.StatusSkipped
		o.Message = "slot already processed"
		return o
	}

	postID, claimed, err := d.guard.Claim(ctx, guard.ClaimRequest{
		RunID:     runID,
		AccountID: account.ID,
		Platform:  account.Platform,
		Slot:      slot,
	})
	if err != nil {
		return failed(o, logger, err.Error())
	}
	if !claimed {
		o.Status = report.StatusSkipped
		o.Message = "slot claimed by another run"
		return o
	}
	o.PostID = &postID

	req := generate.Request{
		Platform: string(account.Platform),
		Niche:    strOrEmpty(account.Niche),
		Tone:     strOrEmpty(account.Tone),
		Pattern:  strOrEmpty(account.Pattern),
		Topic:    d.lookupTopic(ctx, strOrEmpty(account.Niche), logger),
	}

	content, err := d.generator.Generate(ctx, req)
	if err != nil {
		msg := errorMessage("content generation failed", err)
		d.finalizeSlotFailure(ctx, postID, msg, nil, nil, logger)
		return failed(o, logger, msg)
	}

	score := scoring.PredictScore(scoring.Features{
		Platform:       req.Platform,
		Content:        content.Text,
		Hashtags:       content.Hashtags,
		MediaCount:     len(content.MediaURLs),
		HasTopic:       req.Topic != nil,
		LocalPostingAt: slot.In(loc),
	})
	o.Score = &score

	res, err := d.publisher.Publish(ctx, publish.Request{
		AccountID:   account.ID,
		Platform:    string(account.Platform),
		ExternalRef: strOrEmpty(account.ExternalRef),
		Content:     content.Text,
		Hashtags:    content.Hashtags,
		MediaURLs:   content.MediaURLs,
	})
	if err != nil {
		msg := errorMessage("publish failed", err)
		d.finalizeSlotFailure(ctx, postID, msg, content, &score, logger)
		return failed(o, logger, msg)
	}

	postedAt := d.clock.Now().UTC()
	if err := d.guard.Finalize(ctx, postID, database.PostResult{
		Status:         database.StatusPosted,
		Content:        &content.Text,
		Hashtags:       content.Hashtags,
		MediaURLs:      content.MediaURLs,
		PostedAt:       &postedAt,
		ExternalPostID: nonEmpty(res.ExternalPostID),
		PostURL:        nonEmpty(res.PostURL),
		PredictedScore: &score,
	}); err != nil {
		return failed(o, logger, errorMessage("published but not recorded", err))
	}

	o.Status = report.StatusSuccess
	o.PostURL = res.PostURL
	logger.WithFields(logrus.Fields{"post_id": postID, "score": score}).Info("Published automation post")
	return o
}

// lookupTopic is best effort: without a topic the post is still generated.
func (d *Dispatcher) lookupTopic(ctx context.Context, niche string, logger *logrus.Entry) *generate.Topic {
	if d.trends == nil {
		return nil
	}
	item, err := d.trends.Topic(ctx, niche)
	if err != nil {
		logger.WithError(err).Warn("Trend lookup failed, generating without a topic")
		return nil
	}
	if item == nil {
		return nil
	}
	return &generate.Topic{Title: item.Title, Summary: item.Summary, URL: item.URL, ImageURL: item.ImageURL}
}

func (d *Dispatcher) finalizeSlotFailure(ctx context.Context, postID int64, msg string, content *generate.Content, score *float64, logger *logrus.Entry) {
	if err := d.finalizeFailed(ctx, postID, msg, content, score); err != nil {
		logger.WithError(err).Error("Could not mark slot failed")
	}
}
