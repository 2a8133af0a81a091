package compliance

import (
	"errors"
	"testing"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

func testTable() []Descriptor {
	return []Descriptor{
		{Name: "anthropic", Region: "us", GDPRCompliant: false, Text: true, Vision: true},
		{Name: "openai", Region: "us", GDPRCompliant: false, Text: true},
		{Name: "vertex_claude", Region: "europe-west1", GDPRCompliant: true, Text: true, Vision: true},
		{Name: "scaleway", Region: "fr-par", GDPRCompliant: true, Text: true},
	}
}

func TestResolve_NoConstraintUsesRequested(t *testing.T) {
	r := NewRouter(testTable(), []string{"vertex_claude", "scaleway"})

	route, err := r.Resolve("anthropic", false, CapabilityText)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider != "anthropic" {
		t.Errorf("got %q, want anthropic", route.Provider)
	}
	if route.FallbackApplied {
		t.Error("fallback must not apply without constraint")
	}
	if route.Compliant {
		t.Error("anthropic is not compliant")
	}
}

func TestResolve_EUOnlyCompliantUnchanged(t *testing.T) {
	r := NewRouter(testTable(), []string{"vertex_claude", "scaleway"})

	route, err := r.Resolve("scaleway", true, CapabilityText)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider != "scaleway" || route.FallbackApplied {
		t.Errorf("got %+v, want scaleway unchanged", route)
	}
	if !route.Compliant {
		t.Error("expected compliant route")
	}
}

func TestResolve_EUOnlySubstitutesFirstInPriority(t *testing.T) {
	r := NewRouter(testTable(), []string{"vertex_claude", "scaleway"})

	route, err := r.Resolve("anthropic", true, CapabilityText)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider != "vertex_claude" {
		t.Errorf("got %q, want vertex_claude", route.Provider)
	}
	if !route.FallbackApplied {
		t.Error("expected fallbackApplied=true")
	}
	if !route.Compliant {
		t.Error("expected compliant route")
	}
}

func TestResolve_FallbackFilteredByCapability(t *testing.T) {
	// scaleway first in priority but has no vision; vertex_claude must win.
	r := NewRouter(testTable(), []string{"scaleway", "vertex_claude"})

	route, err := r.Resolve("anthropic", true, CapabilityVision)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider != "vertex_claude" {
		t.Errorf("got %q, want vertex_claude (vision capable)", route.Provider)
	}
}

func TestResolve_EmptyCompliantSetFails(t *testing.T) {
	table := []Descriptor{
		{Name: "anthropic", Region: "us", GDPRCompliant: false, Text: true},
	}
	r := NewRouter(table, nil)

	_, err := r.Resolve("anthropic", true, CapabilityText)
	if !errors.Is(err, domain.ErrNoCompliantProvider) {
		t.Errorf("expected ErrNoCompliantProvider, got %v", err)
	}
}

func TestResolve_UnknownProvider(t *testing.T) {
	r := NewRouter(testTable(), nil)

	_, err := r.Resolve("nope", false, CapabilityText)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCompliantProviders_PriorityOrder(t *testing.T) {
	r := NewRouter(testTable(), []string{"vertex_claude", "scaleway"})

	got := r.CompliantProviders(CapabilityText)
	if len(got) != 2 || got[0] != "vertex_claude" || got[1] != "scaleway" {
		t.Errorf("got %v", got)
	}

	vision := r.CompliantProviders(CapabilityVision)
	if len(vision) != 1 || vision[0] != "vertex_claude" {
		t.Errorf("got %v", vision)
	}
}
