package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, record domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records (request_id, tenant_id, license_id, provider, model,
		                           tokens, credits, pii_detected, eu_compliant, fallback_applied,
		                           status, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.RequestID,
		record.TenantID,
		record.LicenseID,
		record.Provider,
		record.Model,
		record.Tokens,
		record.Credits,
		record.PIIDetected,
		record.EUCompliant,
		record.FallbackApplied,
		record.Status,
		record.LatencyMs,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// TenantTotals returns tokens and credits consumed by a tenant since a
// point in time, for admin reporting.
func (r *PostgresRecorder) TenantTotals(ctx context.Context, tenantID string, since time.Time) (tokens int64, credits int64, err error) {
	query := `
		SELECT COALESCE(SUM(tokens), 0), COALESCE(SUM(credits), 0)
		FROM usage_records
		WHERE tenant_id = $1 AND created_at >= $2
	`

	err = r.db.QueryRowContext(ctx, query, tenantID, since).Scan(&tokens, &credits)
	if err != nil {
		return 0, 0, fmt.Errorf("query usage totals: %w", err)
	}
	return tokens, credits, nil
}
