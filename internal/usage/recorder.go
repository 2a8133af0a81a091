// Package usage hands completed-request records to an external
// recorder. Recording is best-effort and post-completion: its failure
// path is unreachable from the pipeline result.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

type Recorder interface {
	Record(ctx context.Context, record domain.UsageRecord) error
}

// TotalsReader is implemented by recorders that can aggregate a
// tenant's consumption, for admin reporting.
type TotalsReader interface {
	TenantTotals(ctx context.Context, tenantID string, since time.Time) (tokens int64, credits int64, err error)
}

// InMemoryRecorder backs development setups and tests.
type InMemoryRecorder struct {
	mu      sync.Mutex
	records []domain.UsageRecord
}

func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

func (r *InMemoryRecorder) Record(ctx context.Context, record domain.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *InMemoryRecorder) Records() []domain.UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UsageRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *InMemoryRecorder) TenantTotals(ctx context.Context, tenantID string, since time.Time) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tokens, credits int64
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.Timestamp.Before(since) {
			continue
		}
		tokens += int64(rec.Tokens)
		credits += rec.Credits
	}
	return tokens, credits, nil
}
