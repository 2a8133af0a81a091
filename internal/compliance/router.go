// Package compliance decides which provider actually serves a request
// under a jurisdictional constraint. It makes no network calls; the
// table is read-only after construction.
package compliance

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// Capability names the operation a request needs, so fallback selection
// never substitutes a compliant but capability-mismatched provider.
type Capability string

const (
	CapabilityText   Capability = "text"
	CapabilityVision Capability = "vision"
)

// Route is the routing decision for one request.
type Route struct {
	Provider        string
	Compliant       bool
	FallbackApplied bool
}

type Router struct {
	table    map[string]Descriptor
	priority []string
}

// NewRouter builds a router over a static descriptor table and a fixed
// fallback priority order.
func NewRouter(table []Descriptor, priority []string) *Router {
	byName := make(map[string]Descriptor, len(table))
	for _, d := range table {
		byName[d.Name] = d
	}
	return &Router{table: byName, priority: priority}
}

// NewDefaultRouter builds a router over the built-in table.
func NewDefaultRouter() *Router {
	return NewRouter(DefaultTable(), DefaultFallbackPriority())
}

// Resolve decides the provider that actually serves the request.
// Without the EU-only constraint the requested provider is used
// unchanged. With it, a non-compliant requested provider is substituted
// by the first compliant provider in priority order that supports the
// needed capability; an empty compliant set is a hard failure.
func (r *Router) Resolve(requested string, euOnly bool, need Capability) (Route, error) {
	if requested == "" {
		return Route{}, fmt.Errorf("%w: provider name required", domain.ErrInvalidRequest)
	}

	desc, ok := r.table[requested]
	if !ok {
		return Route{}, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidRequest, requested)
	}

	if !euOnly {
		return Route{Provider: requested, Compliant: desc.GDPRCompliant}, nil
	}

	if desc.GDPRCompliant && r.supports(desc, need) {
		return Route{Provider: requested, Compliant: true}, nil
	}

	for _, name := range r.priority {
		candidate, ok := r.table[name]
		if !ok || !candidate.GDPRCompliant || !r.supports(candidate, need) {
			continue
		}

		slog.Info("substituted provider for EU-only request",
			"requested", requested,
			"requested_compliant", desc.GDPRCompliant,
			"substituted", candidate.Name,
			"substituted_compliant", candidate.GDPRCompliant,
			"region", candidate.Region,
		)

		return Route{Provider: candidate.Name, Compliant: true, FallbackApplied: true}, nil
	}

	return Route{}, domain.ErrNoCompliantProvider
}

// CompliantProviders returns the compliant set in priority order,
// filtered by capability.
func (r *Router) CompliantProviders(need Capability) []string {
	var names []string
	for _, name := range r.priority {
		if d, ok := r.table[name]; ok && d.GDPRCompliant && r.supports(d, need) {
			names = append(names, name)
		}
	}
	return names
}

// Names returns every provider in the table, sorted for stable output.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the transparency descriptor for a provider.
func (r *Router) Describe(name string) (Descriptor, bool) {
	d, ok := r.table[name]
	return d, ok
}

func (r *Router) supports(d Descriptor, need Capability) bool {
	switch need {
	case CapabilityVision:
		return d.Vision
	default:
		return d.Text
	}
}
