package utils

import (
	"context"
	"errors"
	"fmt"
)

// ErrDailyLimitExceeded is returned once the daily send quota is used up.
var ErrDailyLimitExceeded = errors.New("daily mail limit reached")

// DailyCounter reports how many emails have been recorded today.
type DailyCounter interface {
	CountSentToday(ctx context.Context) (int, error)
}

// DailyLimiter enforces an optional cap on recorded sends per calendar day.
// A limit of zero disables it.
type DailyLimiter struct {
	counter DailyCounter
	limit   int
}

// NewDailyLimiter creates a limiter backed by counter.
func NewDailyLimiter(counter DailyCounter, limit int) *DailyLimiter {
	return &DailyLimiter{counter: counter, limit: limit}
}

// LimitStatus is the current usage of the daily quota.
type LimitStatus struct {
	CurrentCount int  `json:"current_count"`
	Limit        int  `json:"limit"`
	Remaining    int  `json:"remaining"`
	Enabled      bool `json:"enabled"`
}

// Enabled reports whether a limit is configured.
func (l *DailyLimiter) Enabled() bool {
	return l.limit > 0
}

// Status queries the counter and returns usage. Remaining is -1 when the
// limiter is disabled.
func (l *DailyLimiter) Status(ctx context.Context) (LimitStatus, error) {
	count, err := l.counter.CountSentToday(ctx)
	if err != nil {
		return LimitStatus{}, fmt.Errorf("failed to get daily mail count: %w", err)
	}
	st := LimitStatus{CurrentCount: count, Limit: l.limit, Remaining: -1, Enabled: l.Enabled()}
	if st.Enabled {
		st.Remaining = max(l.limit-count, 0)
	}
	return st, nil
}

// Remaining returns how many more sends are allowed today. limited is false
// when no limit is configured, in which case n is meaningless. It returns
// ErrDailyLimitExceeded when nothing is left.
func (l *DailyLimiter) Remaining(ctx context.Context) (n int, limited bool, err error) {
	if !l.Enabled() {
		return 0, false, nil
	}
	st, err := l.Status(ctx)
	if err != nil {
		return 0, true, err
	}
	if st.Remaining == 0 {
		return 0, true, ErrDailyLimitExceeded
	}
	return st.Remaining, true, nil
}
