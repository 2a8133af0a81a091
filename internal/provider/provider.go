// Package provider defines the upstream adapter contract and a name-keyed
// registry of live adapters. The registry is purely a directory: retries,
// health tracking and compliance decisions live elsewhere.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// Generation is the normalized upstream result: generated text plus the
// token count reported by the provider.
type Generation struct {
	Content string
	Tokens  int
}

// Capabilities declares what an adapter can do.
type Capabilities struct {
	Text   bool
	Vision bool
}

// Provider is a live upstream adapter.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, prompt, model string) (*Generation, error)
}

// ImageGenerator is implemented by adapters that declare the vision
// capability.
type ImageGenerator interface {
	GenerateWithImage(ctx context.Context, prompt, imageRef, model string) (*Generation, error)
}

// NotFoundError is returned when a provider name is not registered. It
// enumerates the currently registered names as an operability aid; it
// never carries credentials.
type NotFoundError struct {
	Name       string
	Registered []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not registered (registered: %v)", e.Name, e.Registered)
}

// Registry maps provider names to adapters.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds an adapter under its own name. Registration is
// last-write-wins; overwriting an existing name logs a warning.
// Declared capabilities are validated against the implemented
// interfaces so unsupported operations fail here, not at call time.
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if name == "" {
		return &domain.ProviderConfigError{Provider: name, Reason: "empty provider name"}
	}

	caps := p.Capabilities()
	if !caps.Text {
		return &domain.ProviderConfigError{Provider: name, Reason: "text capability is required"}
	}
	if caps.Vision {
		if _, ok := p.(ImageGenerator); !ok {
			return &domain.ProviderConfigError{Provider: name, Reason: "declares vision but does not implement image generation"}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		slog.Warn("overwriting registered provider", "provider", name)
	}
	r.providers[name] = p
	return nil
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Registered: r.namesLocked()}
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
