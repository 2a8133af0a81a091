package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
)

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Deduct performs the check-and-decrement in one statement. The WHERE
// clause guards the balance, so two concurrent deductions against the
// same license serialize on the row and at most one can take the last
// credits.
func (l *PostgresLedger) Deduct(ctx context.Context, licenseKey string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative deduction", domain.ErrInvalidRequest)
	}

	query := `
		UPDATE licenses
		SET credits = credits - $2, updated_at = NOW()
		WHERE license_key_hash = $1 AND credits >= $2
		RETURNING credits
	`

	var balance int64
	err := l.db.QueryRowContext(ctx, query, license.HashKey(licenseKey), amount).Scan(&balance)
	if err == sql.ErrNoRows {
		// Either the key is unknown or the balance is short; one more
		// read tells them apart without weakening the deduction itself.
		var exists bool
		checkErr := l.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM licenses WHERE license_key_hash = $1)`,
			license.HashKey(licenseKey),
		).Scan(&exists)
		if checkErr != nil {
			return 0, fmt.Errorf("check license: %w", checkErr)
		}
		if !exists {
			return 0, domain.ErrLicenseNotFound
		}
		return 0, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}

	return balance, nil
}
