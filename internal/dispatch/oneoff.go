package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/publish"
	"github.com/TobiSchelling/AutoPoster/internal/report"
)

// runOneOff publishes manually scheduled posts whose instant has passed.
func (d *Dispatcher) runOneOff(ctx context.Context, runID string, now time.Time, rec *report.Recorder, logger *logrus.Entry) error {
	posts, err := d.store.ListDuePosts(ctx, now, d.opts.DuePostLimit)
	if err != nil {
		return fmt.Errorf("listing due posts: %w", err)
	}
	if len(posts) > 0 {
		logger.Infof("Found %d due one-off posts", len(posts))
	}

	for _, post := range posts {
		o := d.publishOneOff(ctx, runID, post, logger.WithField("post_id", post.ID))
		rec.Record(o)
	}
	return nil
}

func (d *Dispatcher) publishOneOff(ctx context.Context, runID string, post database.Post, logger *logrus.Entry) report.Outcome {
	postID := post.ID
	o := report.Outcome{
		Kind:        report.KindOneOff,
		AccountID:   post.AccountID,
		Platform:    string(post.Platform),
		PostID:      &postID,
		ScheduledAt: post.ScheduledAt,
	}

	claimed, err := d.store.ClaimPost(ctx, post.ID, runID, d.clock.Now())
	if err != nil {
		return failed(o, logger, errorMessage("claim failed", err))
	}
	if !claimed {
		o.Status = report.StatusSkipped
		o.Message = "post claimed by another run"
		return o
	}

	account, err := d.store.GetAccount(ctx, post.AccountID)
	if err != nil {
		msg := errorMessage("loading account", err)
		d.recordFailure(ctx, post.ID, msg, logger)
		return failed(o, logger, msg)
	}
	if account == nil || !account.IsActive {
		d.recordFailure(ctx, post.ID, "account inactive", logger)
		return failed(o, logger, "account inactive")
	}

	res, err := d.publisher.Publish(ctx, publish.Request{
		AccountID:   post.AccountID,
		Platform:    string(post.Platform),
		ExternalRef: strOrEmpty(account.ExternalRef),
		Content:     post.Content,
		Hashtags:    post.Hashtags,
		MediaURLs:   post.MediaURLs,
	})
	if err != nil {
		msg := errorMessage("publish failed", err)
		d.recordFailure(ctx, post.ID, msg, logger)
		return failed(o, logger, msg)
	}

	postedAt := d.clock.Now().UTC()
	if err := d.guard.Finalize(ctx, post.ID, database.PostResult{
		Status:         database.StatusPosted,
		PostedAt:       &postedAt,
		ExternalPostID: nonEmpty(res.ExternalPostID),
		PostURL:        nonEmpty(res.PostURL),
	}); err != nil {
		return failed(o, logger, errorMessage("published but not recorded", err))
	}

	o.Status = report.StatusSuccess
	o.PostURL = res.PostURL
	logger.WithField("external_id", res.ExternalPostID).Info("Published one-off post")
	return o
}

func (d *Dispatcher) recordFailure(ctx context.Context, postID int64, msg string, logger *logrus.Entry) {
	if err := d.finalizeFailed(ctx, postID, msg, nil, nil); err != nil {
		logger.WithError(err).Error("Could not mark post failed")
	}
}

func failed(o report.Outcome, logger *logrus.Entry, msg string) report.Outcome {
	o.Status = report.StatusFailed
	o.Message = msg
	logger.Warn(msg)
	return o
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
