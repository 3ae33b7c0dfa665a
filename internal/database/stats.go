package database

import "context"

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		dest  *int
		query string
	}{
		{&s.Accounts, "SELECT COUNT(*) FROM accounts"},
		{&s.ActiveAccounts, "SELECT COUNT(*) FROM accounts WHERE is_active = 1"},
		{&s.EnabledProfiles, "SELECT COUNT(*) FROM automation_profiles WHERE enabled = 1"},
		{&s.ScheduledPosts, "SELECT COUNT(*) FROM posts WHERE status = 'scheduled'"},
		{&s.PostedPosts, "SELECT COUNT(*) FROM posts WHERE status = 'posted'"},
		{&s.FailedPosts, "SELECT COUNT(*) FROM posts WHERE status = 'failed'"},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
