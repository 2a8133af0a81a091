package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoCompliantProvider = errors.New("no EU-compliant provider available")
	ErrCircuitOpen         = errors.New("provider temporarily unavailable")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrLicenseNotFound     = errors.New("license not found")
	ErrLicenseInactive     = errors.New("license inactive")
	ErrLicenseExpired      = errors.New("license expired")
	ErrInternal            = errors.New("internal error")
)

// ProviderAPIError marks an upstream failure: auth, throttling, 5xx,
// malformed responses, transport errors. Retryable per policy.
type ProviderAPIError struct {
	Provider string
	Err      error
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("provider %s: upstream error: %v", e.Provider, e.Err)
}

func (e *ProviderAPIError) Unwrap() error { return e.Err }

// ProviderConfigError marks a local misconfiguration (missing credential,
// unsupported model, capability mismatch). Never retried.
type ProviderConfigError struct {
	Provider string
	Reason   string
}

func (e *ProviderConfigError) Error() string {
	return fmt.Sprintf("provider %s: configuration error: %s", e.Provider, e.Reason)
}

// BillingError marks a failed deduction after generation succeeded.
// Terminal: the generated content is discarded.
type BillingError struct {
	Err error
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("billing failed: %v", e.Err)
}

func (e *BillingError) Unwrap() error { return e.Err }

// IsRetryable reports whether a provider call failure should be retried.
// Configuration errors and open circuits fail fast; everything else from
// an upstream is retried up to policy limits.
func IsRetryable(err error) bool {
	var cfgErr *ProviderConfigError
	if errors.As(err, &cfgErr) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return true
}
