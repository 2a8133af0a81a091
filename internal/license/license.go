// Package license looks up prepaid license keys. The directory sits
// upstream of the request pipeline (authentication), not inside it.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// Directory resolves a license key to its tenant and credit state.
type Directory interface {
	Lookup(ctx context.Context, licenseKey string) (*domain.License, error)
}

// HashKey returns the hex SHA-256 of a license key. Keys are stored and
// queried only in hashed form.
func HashKey(licenseKey string) string {
	hash := sha256.Sum256([]byte(licenseKey))
	return hex.EncodeToString(hash[:])
}

// Validate applies the directory rules shared by all backends.
func Validate(l *domain.License, now time.Time) error {
	if !l.Active {
		return domain.ErrLicenseInactive
	}
	if !l.ExpiresAt.IsZero() && now.After(l.ExpiresAt) {
		return domain.ErrLicenseExpired
	}
	if l.CreditsRemaining <= 0 {
		return domain.ErrInsufficientCredits
	}
	return nil
}
