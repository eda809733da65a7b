package database

import (
	"context"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// CountSentToday returns how many records were written since midnight
// (database clock).
func (s *Store) CountSentToday(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sent_emails WHERE sent_at >= CURRENT_DATE",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get daily mail count: %w", err)
	}
	return count, nil
}

// DailySends returns the number of records per day for the last days days,
// keyed by YYYY-MM-DD. Days without sends are present with a zero count.
func (s *Store) DailySends(ctx context.Context, days int) (map[string]int, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	// Keys and filter share the database's calendar day.
	var today time.Time
	if err := s.db.QueryRowContext(ctx, "SELECT CURRENT_DATE").Scan(&today); err != nil {
		return nil, fmt.Errorf("failed to get current date: %w", err)
	}

	dailySends := make(map[string]int, days)
	for i := 0; i < days; i++ {
		dailySends[today.AddDate(0, 0, -i).Format(dayLayout)] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sent_at::date AS log_date, COUNT(*)
		FROM sent_emails
		WHERE sent_at::date > $1::date - $2::integer
		GROUP BY log_date
		ORDER BY log_date ASC`, today.Format(dayLayout), days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily sends over period: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var logDate time.Time
		var count int
		if err := rows.Scan(&logDate, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily sends row: %w", err)
		}
		dailySends[logDate.Format(dayLayout)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over daily sends rows: %w", err)
	}
	return dailySends, nil
}
