package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
)

// InMemoryLedger backs development setups and tests. The mutex gives it
// the same all-or-nothing deduction semantics as the remote backends.
type InMemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64 // keyed by hashed license key
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[string]int64)}
}

func (l *InMemoryLedger) SetBalance(licenseKey string, credits int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[license.HashKey(licenseKey)] = credits
}

func (l *InMemoryLedger) Balance(licenseKey string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[license.HashKey(licenseKey)]
}

func (l *InMemoryLedger) Deduct(ctx context.Context, licenseKey string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative deduction", domain.ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := license.HashKey(licenseKey)
	balance, ok := l.balances[key]
	if !ok {
		return 0, domain.ErrLicenseNotFound
	}
	if balance < amount {
		return 0, domain.ErrInsufficientCredits
	}

	balance -= amount
	l.balances[key] = balance
	return balance, nil
}
