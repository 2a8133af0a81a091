package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
)

// scriptedProvider fails a fixed number of times, then succeeds.
type scriptedProvider struct {
	name      string
	failures  int
	calls     int
	configErr bool
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Text: true}
}

func (s *scriptedProvider) Generate(ctx context.Context, prompt, model string) (*provider.Generation, error) {
	s.calls++
	if s.configErr {
		return nil, &domain.ProviderConfigError{Provider: s.name, Reason: "missing API key"}
	}
	if s.calls <= s.failures {
		return nil, &domain.ProviderAPIError{Provider: s.name, Err: errors.New("upstream 503")}
	}
	return &provider.Generation{Content: "generated by " + s.name, Tokens: 12}, nil
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialDelay: time.Millisecond, Base: 2, MaxDelay: 10 * time.Millisecond}
}

func newTestExecutor(t *testing.T, retry RetryPolicy, providers ...provider.Provider) (*Executor, *Registry) {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.Name(), err)
		}
	}
	health := NewRegistry(DefaultHealthConfig())
	return NewExecutor(ExecutorConfig{
		Registry:    reg,
		Health:      health,
		Retry:       retry,
		CallTimeout: time.Second,
	}), health
}

func TestExecutor_SucceedsAfterRetries(t *testing.T) {
	p := &scriptedProvider{name: "anthropic", failures: 2}
	e, _ := newTestExecutor(t, fastPolicy(3), p)

	result, err := e.Execute(context.Background(), []string{"anthropic"}, "hi", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("adapter invoked %d times, want 3", p.calls)
	}
	if result.Provider != "anthropic" || result.Tokens != 12 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExecutor_ExhaustsRetriesThenFails(t *testing.T) {
	p := &scriptedProvider{name: "anthropic", failures: 10}
	e, _ := newTestExecutor(t, fastPolicy(3), p)

	_, err := e.Execute(context.Background(), []string{"anthropic"}, "hi", "")

	var apiErr *domain.ProviderAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ProviderAPIError, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("adapter invoked %d times, want 3", p.calls)
	}
}

func TestExecutor_FailoverToSecondary(t *testing.T) {
	primary := &scriptedProvider{name: "vertex_claude", failures: 10}
	secondary := &scriptedProvider{name: "scaleway"}
	tertiary := &scriptedProvider{name: "bedrock"}
	e, _ := newTestExecutor(t, fastPolicy(3), primary, secondary, tertiary)

	result, err := e.Execute(context.Background(), []string{"vertex_claude", "scaleway", "bedrock"}, "hi", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Provider != "scaleway" {
		t.Errorf("result tagged %q, want scaleway", result.Provider)
	}
	if primary.calls != 3 {
		t.Errorf("primary invoked %d times, want full retry budget of 3", primary.calls)
	}
	if secondary.calls != 1 {
		t.Errorf("secondary invoked %d times, want 1", secondary.calls)
	}
	if tertiary.calls != 0 {
		t.Errorf("tertiary invoked %d times, want 0", tertiary.calls)
	}
}

func TestExecutor_AllProvidersExhaustedReturnsLastError(t *testing.T) {
	first := &scriptedProvider{name: "vertex_claude", failures: 10}
	second := &scriptedProvider{name: "scaleway", configErr: true}
	e, _ := newTestExecutor(t, fastPolicy(2), first, second)

	_, err := e.Execute(context.Background(), []string{"vertex_claude", "scaleway"}, "hi", "")

	var cfgErr *domain.ProviderConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected most recent error (config), got %v", err)
	}
}

func TestExecutor_ConfigErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{name: "anthropic", configErr: true}
	e, health := newTestExecutor(t, fastPolicy(3), p)

	_, err := e.Execute(context.Background(), []string{"anthropic"}, "hi", "")

	var cfgErr *domain.ProviderConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ProviderConfigError, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("adapter invoked %d times, want 1", p.calls)
	}
	// Local misconfiguration does not count against upstream health.
	if got := health.Status("anthropic"); got != StatusHealthy {
		t.Errorf("health status %v, want healthy", got)
	}
}

func TestExecutor_OpenCircuitRejectsWithoutInvoking(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{name: "anthropic", failures: 0}
	e, health := newTestExecutor(t, fastPolicy(1), p)

	for i := 0; i < 5; i++ {
		health.RecordFailure(ctx, "anthropic")
	}

	_, err := e.Execute(ctx, []string{"anthropic"}, "hi", "")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("adapter invoked %d times, want 0 while circuit open", p.calls)
	}

	// Failover still proceeds past the open circuit.
	backup := &scriptedProvider{name: "scaleway"}
	reg := provider.NewRegistry()
	reg.Register(p)
	reg.Register(backup)
	e2 := NewExecutor(ExecutorConfig{Registry: reg, Health: health, Retry: fastPolicy(1), CallTimeout: time.Second})

	result, err := e2.Execute(ctx, []string{"anthropic", "scaleway"}, "hi", "")
	if err != nil {
		t.Fatalf("Execute with backup: %v", err)
	}
	if result.Provider != "scaleway" || p.calls != 0 {
		t.Errorf("expected scaleway to serve without touching anthropic")
	}
}

func TestExecutor_SuccessReopensFlow(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{name: "anthropic"}
	e, health := newTestExecutor(t, fastPolicy(1), p)

	for i := 0; i < 5; i++ {
		health.RecordFailure(ctx, "anthropic")
	}
	health.RecordSuccess(ctx, "anthropic")

	result, err := e.Execute(ctx, []string{"anthropic"}, "hi", "")
	if err != nil {
		t.Fatalf("Execute after success: %v", err)
	}
	if result.Provider != "anthropic" {
		t.Errorf("got %q", result.Provider)
	}
}

func TestExecutor_UnknownProviderSkipped(t *testing.T) {
	p := &scriptedProvider{name: "scaleway"}
	e, _ := newTestExecutor(t, fastPolicy(1), p)

	result, err := e.Execute(context.Background(), []string{"ghost", "scaleway"}, "hi", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Provider != "scaleway" {
		t.Errorf("got %q", result.Provider)
	}
}

func TestExecutor_EmptyProviderList(t *testing.T) {
	e, _ := newTestExecutor(t, fastPolicy(1))

	_, err := e.Execute(context.Background(), nil, "hi", "")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
