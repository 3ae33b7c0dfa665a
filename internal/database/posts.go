package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// timeLayout is lexically ordered, so scheduled_at compares correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05Z"

var postColumns = []string{
	"id", "account_id", "platform", "content", "hashtags", "media_urls", "status", "origin",
	"scheduled_at", "posted_at", "external_post_id", "post_url", "error_message",
	"predicted_score", "actual_score", "claimed_by", "claimed_at", "created_at", "updated_at",
}

// FormatTime renders an instant the way it is stored: UTC, second precision.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

// InsertPost creates a post. For automation posts a second insert for the
// same account and scheduled instant returns ErrSlotTaken.
func (db *DB) InsertPost(ctx context.Context, p NewPost) (int64, error) {
	if p.Status == "" {
		p.Status = StatusScheduled
	}
	if p.Origin == "" {
		p.Origin = OriginManual
	}
	hashtags, err := encodeList(p.Hashtags)
	if err != nil {
		return 0, err
	}
	media, err := encodeList(p.MediaURLs)
	if err != nil {
		return 0, err
	}

	claimedAt := formatTimePtr(p.ClaimedAt)
	if p.ClaimedBy != nil && claimedAt == nil {
		now := FormatTime(time.Now())
		claimedAt = &now
	}

	query, args, err := sq.Insert("posts").
		Columns("account_id", "platform", "content", "hashtags", "media_urls", "status", "origin",
			"scheduled_at", "predicted_score", "claimed_by", "claimed_at").
		Values(p.AccountID, string(p.Platform), p.Content, hashtags, media, string(p.Status), string(p.Origin),
			formatTimePtr(p.ScheduledAt), p.PredictedScore, p.ClaimedBy, claimedAt).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("account %d at %v: %w", p.AccountID, p.ScheduledAt, ErrSlotTaken)
		}
		return 0, fmt.Errorf("inserting post: %w", err)
	}
	return result.LastInsertId()
}

// GetPost returns a single post, or nil if it does not exist.
func (db *DB) GetPost(ctx context.Context, postID int64) (*Post, error) {
	query, args, err := sq.Select(postColumns...).From("posts").Where(sq.Eq{"id": postID}).ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanPost(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListDuePosts returns unclaimed one-off posts whose scheduled instant has
// passed, earliest first.
func (db *DB) ListDuePosts(ctx context.Context, now time.Time, limit int) ([]Post, error) {
	builder := sq.Select(postColumns...).From("posts").
		Where(sq.Eq{
			"status":     string(StatusScheduled),
			"origin":     string(OriginManual),
			"claimed_by": nil,
		}).
		Where(sq.NotEq{"scheduled_at": nil}).
		Where(sq.LtOrEq{"scheduled_at": FormatTime(now)}).
		OrderBy("scheduled_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return db.queryPosts(ctx, builder)
}

// ListPostsForAccount returns the most recent posts of an account.
func (db *DB) ListPostsForAccount(ctx context.Context, accountID int64, limit int) ([]Post, error) {
	builder := sq.Select(postColumns...).From("posts").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("COALESCE(scheduled_at, created_at) DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return db.queryPosts(ctx, builder)
}

// HasTerminalPost reports whether a posted or failed post exists for the
// account at exactly the given instant.
func (db *DB) HasTerminalPost(ctx context.Context, accountID int64, scheduledAt time.Time) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").From("posts").
		Where(sq.Eq{
			"account_id":   accountID,
			"scheduled_at": FormatTime(scheduledAt),
			"status":       []string{string(StatusPosted), string(StatusFailed)},
		}).
		ToSql()
	if err != nil {
		return false, err
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking terminal post: %w", err)
	}
	return count > 0, nil
}

// ClaimPost marks a scheduled, unclaimed post as owned by runID. It returns
// false when another run got there first.
func (db *DB) ClaimPost(ctx context.Context, postID int64, runID string, now time.Time) (bool, error) {
	query, args, err := sq.Update("posts").
		Set("claimed_by", runID).
		Set("claimed_at", FormatTime(now)).
		Set("updated_at", sq.Expr("datetime('now')")).
		Where(sq.Eq{"id": postID, "status": string(StatusScheduled), "claimed_by": nil}).
		ToSql()
	if err != nil {
		return false, err
	}
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claiming post %d: %w", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdatePostStatus moves a scheduled post to its terminal status. A post
// that is no longer scheduled is left untouched and ErrNotScheduled is returned.
func (db *DB) UpdatePostStatus(ctx context.Context, postID int64, r PostResult) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", r.Status)
	}

	builder := sq.Update("posts").
		Set("status", string(r.Status)).
		Set("posted_at", formatTimePtr(r.PostedAt)).
		Set("external_post_id", r.ExternalPostID).
		Set("post_url", r.PostURL).
		Set("error_message", r.ErrorMessage).
		Set("updated_at", sq.Expr("datetime('now')"))
	if r.Content != nil {
		builder = builder.Set("content", *r.Content)
	}
	if r.Hashtags != nil {
		hashtags, err := encodeList(r.Hashtags)
		if err != nil {
			return err
		}
		builder = builder.Set("hashtags", hashtags)
	}
	if r.MediaURLs != nil {
		media, err := encodeList(r.MediaURLs)
		if err != nil {
			return err
		}
		builder = builder.Set("media_urls", media)
	}
	if r.PredictedScore != nil {
		builder = builder.Set("predicted_score", *r.PredictedScore)
	}

	query, args, err := builder.Where(sq.Eq{"id": postID, "status": string(StatusScheduled)}).ToSql()
	if err != nil {
		return err
	}
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating post %d: %w", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %d: %w", postID, ErrNotScheduled)
	}
	return nil
}

// FailStaleClaims fails posts that were claimed before cutoff but never
// reached a terminal status, which happens when a run dies mid-publish.
func (db *DB) FailStaleClaims(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	query, args, err := sq.Update("posts").
		Set("status", string(StatusFailed)).
		Set("error_message", reason).
		Set("updated_at", sq.Expr("datetime('now')")).
		Where(sq.Eq{"status": string(StatusScheduled)}).
		Where(sq.NotEq{"claimed_by": nil}).
		Where(sq.Lt{"claimed_at": FormatTime(cutoff)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failing stale claims: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) queryPosts(ctx context.Context, builder sq.SelectBuilder) ([]Post, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var platform, status, origin string
	var hashtags, media, scheduledAt, postedAt, claimedAt *string
	if err := row.Scan(&p.ID, &p.AccountID, &platform, &p.Content, &hashtags, &media, &status, &origin,
		&scheduledAt, &postedAt, &p.ExternalPostID, &p.PostURL, &p.ErrorMessage,
		&p.PredictedScore, &p.ActualScore, &p.ClaimedBy, &claimedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Platform = Platform(platform)
	p.Status = PostStatus(status)
	p.Origin = PostOrigin(origin)
	p.Hashtags = decodeList(hashtags)
	p.MediaURLs = decodeList(media)
	p.ScheduledAt = parseTimePtr(scheduledAt)
	p.PostedAt = parseTimePtr(postedAt)
	p.ClaimedAt = parseTimePtr(claimedAt)
	return &p, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}
