package cache

import (
	"context"
	"time"

	"retailpos/internal/domain"
)

// ReportCache holds rendered daily reports keyed by calendar day.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ string) error {
	return nil
}

// ReportKey is the cache key for the report of the given day.
func ReportKey(day time.Time) string {
	return "retailpos:report:daily:" + day.Format(time.DateOnly)
}
