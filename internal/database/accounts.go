package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const accountColumns = `id, user_id, platform, name, external_ref, is_active,
	schedule_times, timezone, niche, tone, pattern, created_at`

// InsertAccount creates a connected account and returns its ID.
func (db *DB) InsertAccount(ctx context.Context, a Account) (int64, error) {
	if !a.Platform.Valid() {
		return 0, fmt.Errorf("unsupported platform %q", a.Platform)
	}
	times, err := encodeList(a.Schedule.Times)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (user_id, platform, name, external_ref, is_active,
			schedule_times, timezone, niche, tone, pattern)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, string(a.Platform), a.Name, a.ExternalRef, boolToInt(a.IsActive),
		times, a.Schedule.Timezone, a.Niche, a.Tone, a.Pattern,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting account: %w", err)
	}
	return result.LastInsertId()
}

// GetAccount returns a single account, or nil if it does not exist.
func (db *DB) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", accountID,
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAllAccounts returns every account, oldest first.
func (db *DB) GetAllAccounts(ctx context.Context) ([]Account, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// SetAccountActive flips the active flag of an account.
func (db *DB) SetAccountActive(ctx context.Context, accountID int64, active bool) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET is_active = ? WHERE id = ?", boolToInt(active), accountID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// UpdateAccountSchedule replaces the recurring schedule of an account.
func (db *DB) UpdateAccountSchedule(ctx context.Context, accountID int64, schedule Schedule) error {
	times, err := encodeList(schedule.Times)
	if err != nil {
		return err
	}
	result, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET schedule_times = ?, timezone = ? WHERE id = ?",
		times, schedule.Timezone, accountID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var platform string
	var active int
	var times *string
	if err := row.Scan(&a.ID, &a.UserID, &platform, &a.Name, &a.ExternalRef, &active,
		&times, &a.Schedule.Timezone, &a.Niche, &a.Tone, &a.Pattern, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Platform = Platform(platform)
	a.IsActive = active != 0
	a.Schedule.Times = decodeList(times)
	return &a, nil
}

func encodeList(values []string) (*string, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodeList(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(*raw), &values); err != nil {
		return nil
	}
	return values
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
