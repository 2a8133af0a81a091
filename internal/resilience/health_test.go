package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

func TestRegistry_StartsHealthy(t *testing.T) {
	r := NewRegistry(DefaultHealthConfig())

	if err := r.Allow(context.Background(), "anthropic"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
	if got := r.Status("anthropic"); got != StatusHealthy {
		t.Errorf("got %v, want healthy", got)
	}
}

func TestRegistry_StatusThresholds(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(DefaultHealthConfig())

	r.RecordFailure(ctx, "openai")
	if got := r.Status("openai"); got != StatusHealthy {
		t.Errorf("after 1 failure: got %v, want healthy", got)
	}

	r.RecordFailure(ctx, "openai")
	if got := r.Status("openai"); got != StatusDegraded {
		t.Errorf("after 2 failures: got %v, want degraded", got)
	}

	r.RecordFailure(ctx, "openai")
	r.RecordFailure(ctx, "openai")
	if got := r.Status("openai"); got != StatusDegraded {
		t.Errorf("after 4 failures: got %v, want degraded", got)
	}

	r.RecordFailure(ctx, "openai")
	if got := r.Status("openai"); got != StatusUnhealthy {
		t.Errorf("after 5 failures: got %v, want unhealthy", got)
	}
}

func TestRegistry_CircuitOpensOnFifthFailure(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(DefaultHealthConfig())

	for i := 0; i < 4; i++ {
		r.RecordFailure(ctx, "anthropic")
		if err := r.Allow(ctx, "anthropic"); err != nil {
			t.Fatalf("circuit open after %d failures", i+1)
		}
	}

	r.RecordFailure(ctx, "anthropic")

	if err := r.Allow(ctx, "anthropic"); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after 5 failures, got %v", err)
	}
}

func TestRegistry_OneSuccessFullyClosesCircuit(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(DefaultHealthConfig())

	for i := 0; i < 5; i++ {
		r.RecordFailure(ctx, "anthropic")
	}
	if err := r.Allow(ctx, "anthropic"); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatal("circuit should be open")
	}

	r.RecordSuccess(ctx, "anthropic")

	if err := r.Allow(ctx, "anthropic"); err != nil {
		t.Errorf("one success must fully close the circuit, got %v", err)
	}
	if got := r.Status("anthropic"); got != StatusHealthy {
		t.Errorf("got %v, want healthy", got)
	}
}

func TestRegistry_CircuitClosesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	r := NewRegistry(HealthConfig{FailureThreshold: 5, DegradedThreshold: 2, Cooldown: 5 * time.Minute})
	r.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		r.RecordFailure(ctx, "anthropic")
	}
	if err := r.Allow(ctx, "anthropic"); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatal("circuit should be open")
	}

	now = now.Add(5*time.Minute + time.Second)

	if err := r.Allow(ctx, "anthropic"); err != nil {
		t.Errorf("expected allow after cooldown, got %v", err)
	}

	// A failure after the cooldown re-opens immediately: consecutive
	// failures never decrement, only a success resets them.
	r.RecordFailure(ctx, "anthropic")
	if err := r.Allow(ctx, "anthropic"); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected re-open on post-cooldown failure, got %v", err)
	}
}

func TestRegistry_ManualReset(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(DefaultHealthConfig())

	for i := 0; i < 5; i++ {
		r.RecordFailure(ctx, "anthropic")
	}
	if err := r.Reset(ctx, "anthropic"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := r.Allow(ctx, "anthropic"); err != nil {
		t.Errorf("expected allow after reset, got %v", err)
	}
}

func TestRegistry_ConcurrentFailuresAllCounted(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(HealthConfig{FailureThreshold: 1000, DegradedThreshold: 2, Cooldown: time.Minute})

	const goroutines = 50
	const perGoroutine = 10

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				r.RecordFailure(ctx, "anthropic")
			}
		}()
	}
	wg.Wait()

	snapshot, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(snapshot))
	}
	if got := snapshot[0].TotalFailures; got != goroutines*perGoroutine {
		t.Errorf("lost updates: got %d failures, want %d", got, goroutines*perGoroutine)
	}
	if got := snapshot[0].ConsecutiveFailures; got != goroutines*perGoroutine {
		t.Errorf("got %d consecutive failures, want %d", got, goroutines*perGoroutine)
	}
}

func TestRegistry_StateChangeHooks(t *testing.T) {
	ctx := context.Background()

	var opened, closed []string
	r := NewRegistry(DefaultHealthConfig(), WithStateChangeHooks(
		func(p string) { opened = append(opened, p) },
		func(p string) { closed = append(closed, p) },
	))

	for i := 0; i < 7; i++ {
		r.RecordFailure(ctx, "anthropic")
	}
	r.RecordSuccess(ctx, "anthropic")

	if len(opened) != 1 || opened[0] != "anthropic" {
		t.Errorf("expected one open notification, got %v", opened)
	}
	if len(closed) != 1 || closed[0] != "anthropic" {
		t.Errorf("expected one close notification, got %v", closed)
	}
}

func TestRegistry_NoCloseNotificationAfterCooldownLapsed(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	var closed int
	r := NewRegistry(HealthConfig{FailureThreshold: 5, DegradedThreshold: 2, Cooldown: 5 * time.Minute},
		WithStateChangeHooks(
			func(string) {},
			func(string) { closed++ },
		))
	r.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		r.RecordFailure(ctx, "anthropic")
	}

	// The cooldown lapses before the next success: the circuit closed
	// on its own, so the success must not announce a recovery.
	now = now.Add(5*time.Minute + time.Second)
	r.RecordSuccess(ctx, "anthropic")

	if closed != 0 {
		t.Errorf("got %d close notifications for an already-lapsed circuit, want 0", closed)
	}

	// A success against a circuit still inside its cooldown does announce.
	for i := 0; i < 5; i++ {
		r.RecordFailure(ctx, "anthropic")
	}
	now = now.Add(time.Minute)
	r.RecordSuccess(ctx, "anthropic")

	if closed != 1 {
		t.Errorf("got %d close notifications for a still-open circuit, want 1", closed)
	}
}
