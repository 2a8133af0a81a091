package license

import (
	"context"
	"sync"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// InMemoryDirectory backs development setups and tests.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	licenses map[string]domain.License // keyed by hashed license key
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{licenses: make(map[string]domain.License)}
}

func (d *InMemoryDirectory) Put(licenseKey string, lic domain.License) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.licenses[HashKey(licenseKey)] = lic
}

func (d *InMemoryDirectory) Lookup(ctx context.Context, licenseKey string) (*domain.License, error) {
	d.mu.RLock()
	lic, ok := d.licenses[HashKey(licenseKey)]
	d.mu.RUnlock()

	if !ok {
		return nil, domain.ErrLicenseNotFound
	}
	if err := Validate(&lic, time.Now()); err != nil {
		return nil, err
	}
	return &lic, nil
}
