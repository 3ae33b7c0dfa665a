package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertProfile creates or replaces the automation profile of an account.
func (db *DB) UpsertProfile(ctx context.Context, p AutomationProfile) error {
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
	if p.ErrorHandling == "" {
		p.ErrorHandling = ErrorHandlingContinue
	}
	if p.ErrorHandling != ErrorHandlingContinue && p.ErrorHandling != ErrorHandlingStop {
		return fmt.Errorf("unsupported error_handling %q", p.ErrorHandling)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO automation_profiles (account_id, batch_size, error_handling, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			batch_size = excluded.batch_size,
			error_handling = excluded.error_handling,
			enabled = excluded.enabled,
			updated_at = datetime('now')`,
		p.AccountID, p.BatchSize, string(p.ErrorHandling), boolToInt(p.Enabled),
	)
	if err != nil {
		return fmt.Errorf("upserting profile for account %d: %w", p.AccountID, err)
	}
	return nil
}

// GetProfile returns the automation profile of an account, or nil.
func (db *DB) GetProfile(ctx context.Context, accountID int64) (*AutomationProfile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT account_id, batch_size, error_handling, enabled, updated_at
		FROM automation_profiles WHERE account_id = ?`, accountID,
	)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListEnabledProfiles returns enabled automation profiles ordered by account.
func (db *DB) ListEnabledProfiles(ctx context.Context) ([]AutomationProfile, error) {
	return db.queryProfiles(ctx, `SELECT account_id, batch_size, error_handling, enabled, updated_at
		FROM automation_profiles WHERE enabled = 1 ORDER BY account_id`)
}

// GetAllProfiles returns every automation profile.
func (db *DB) GetAllProfiles(ctx context.Context) ([]AutomationProfile, error) {
	return db.queryProfiles(ctx, `SELECT account_id, batch_size, error_handling, enabled, updated_at
		FROM automation_profiles ORDER BY account_id`)
}

func (db *DB) queryProfiles(ctx context.Context, query string) ([]AutomationProfile, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []AutomationProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func scanProfile(row rowScanner) (*AutomationProfile, error) {
	var p AutomationProfile
	var handling string
	var enabled int
	if err := row.Scan(&p.AccountID, &p.BatchSize, &handling, &enabled, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ErrorHandling = ErrorHandling(handling)
	p.Enabled = enabled != 0
	return &p, nil
}
