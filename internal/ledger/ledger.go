// Package ledger is the client side of the prepaid credit ledger.
//
// Deduction is a single atomic remote operation: the pipeline never
// reads a balance and writes it back, so concurrent requests against
// the same license cannot jointly overdraw it.
package ledger

import "context"

// Ledger deducts prepaid credits. Deduct returns the new balance, or
// domain.ErrInsufficientCredits when the balance is below amount, or
// domain.ErrLicenseNotFound for an unknown key.
type Ledger interface {
	Deduct(ctx context.Context, licenseKey string, amount int64) (int64, error)
}
