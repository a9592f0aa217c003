package audit

import (
	"context"
	"fmt"
	"time"
)

// FindArchiveEligible returns entries older than the retention window,
// oldest first. A zero window makes every entry eligible. This is a
// classification only: nothing is mutated or deleted, and eligible entries
// stay in the store as part of the verifiable chain. Physical archival is an
// external process.
func (l *Log) FindArchiveEligible(ctx context.Context, window time.Duration) ([]Entry, error) {
	f, err := retentionFilter(window)
	if err != nil {
		return nil, err
	}
	return l.store.Read(ctx, f)
}

// ArchiveEligibleCount is FindArchiveEligible without materializing entries.
func (l *Log) ArchiveEligibleCount(ctx context.Context, window time.Duration) (int64, error) {
	f, err := retentionFilter(window)
	if err != nil {
		return 0, err
	}
	return l.store.Count(ctx, f)
}

func retentionFilter(window time.Duration) (Filter, error) {
	if window < 0 {
		return Filter{}, fmt.Errorf("retention window must not be negative: %v", window)
	}
	if window == 0 {
		return Filter{}, nil
	}
	return Filter{To: FormatTime(time.Now().Add(-window))}, nil
}
