package license

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, licenseKey string) (*domain.License, error) {
	query := `
		SELECT tenant_id, active, expires_at, credits
		FROM licenses
		WHERE license_key_hash = $1
	`

	var lic domain.License
	var expiresAt sql.NullTime

	err := d.db.QueryRowContext(ctx, query, HashKey(licenseKey)).Scan(
		&lic.TenantID,
		&lic.Active,
		&expiresAt,
		&lic.CreditsRemaining,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query license: %w", err)
	}

	if expiresAt.Valid {
		lic.ExpiresAt = expiresAt.Time
	}

	if err := Validate(&lic, time.Now()); err != nil {
		return nil, err
	}
	return &lic, nil
}
