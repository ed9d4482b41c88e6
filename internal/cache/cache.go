package cache

import (
	"context"
	"time"

	"oilmill/backend/internal/domain"
)

// KeyPrefix namespaces all metrics snapshot keys so invalidation can target
// them without touching unrelated data.
const KeyPrefix = "financial-metrics:"

type MetricsCache interface {
	Get(ctx context.Context, key string) (*domain.FinancialMetrics, bool, error)
	Set(ctx context.Context, key string, value *domain.FinancialMetrics, ttl time.Duration) error
	// Invalidate drops every cached snapshot. Called whenever an invoice is
	// created or cancelled so stale totals never outlive the data they
	// summarize.
	Invalidate(ctx context.Context) error
}

type NoopMetricsCache struct{}

func (NoopMetricsCache) Get(_ context.Context, _ string) (*domain.FinancialMetrics, bool, error) {
	return nil, false, nil
}

func (NoopMetricsCache) Set(_ context.Context, _ string, _ *domain.FinancialMetrics, _ time.Duration) error {
	return nil
}

func (NoopMetricsCache) Invalidate(_ context.Context) error {
	return nil
}
