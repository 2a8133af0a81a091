package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/metrics"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/provider"
)

// Result is a successful generation tagged with the provider that
// actually served it.
type Result struct {
	Content  string
	Tokens   int
	Provider string
}

// Executor runs provider calls under the retry, circuit-breaker and
// failover policies.
type Executor struct {
	registry    *provider.Registry
	health      HealthTracker
	retry       RetryPolicy
	callTimeout time.Duration
}

// ExecutorConfig wires an Executor. CallTimeout bounds each single
// outbound attempt and must stay below the overall retry budget.
type ExecutorConfig struct {
	Registry    *provider.Registry
	Health      HealthTracker
	Retry       RetryPolicy
	CallTimeout time.Duration
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 30 * time.Second
	}
	return &Executor{
		registry:    cfg.Registry,
		health:      cfg.Health,
		retry:       cfg.Retry,
		callTimeout: callTimeout,
	}
}

// Execute tries each provider in order, running the full retry policy
// against one before moving to the next. The first success anywhere in
// the list is returned, tagged with the serving provider; if every
// provider exhausts its budget the most recent error is returned.
func (e *Executor) Execute(ctx context.Context, providers []string, prompt, model string) (*Result, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no providers to invoke", domain.ErrInvalidRequest)
	}

	var lastErr error
	for i, name := range providers {
		p, err := e.registry.Get(name)
		if err != nil {
			slog.Warn("skipping unknown provider in failover chain", "provider", name)
			lastErr = err
			continue
		}

		gen, err := e.callWithRetry(ctx, p, prompt, model)
		if err == nil {
			if i > 0 {
				slog.Info("failover succeeded", "provider", name, "position", i)
			}
			return &Result{Content: gen.Content, Tokens: gen.Tokens, Provider: name}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("provider exhausted, failing over", "provider", name, "error", err)
	}

	return nil, lastErr
}

func (e *Executor) callWithRetry(ctx context.Context, p provider.Provider, prompt, model string) (*provider.Generation, error) {
	name := p.Name()
	var lastErr error

	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.retry.Delay(attempt-1)); err != nil {
				return nil, lastErr
			}
		}

		if err := e.health.Allow(ctx, name); err != nil {
			// Open circuit: rejected pre-network, counters untouched.
			// Retrying the same provider inside the cooldown is
			// pointless, so it counts as exhausted.
			metrics.CircuitRejections.WithLabelValues(name).Inc()
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		gen, err := p.Generate(callCtx, prompt, model)
		cancel()

		if err == nil {
			e.health.RecordSuccess(ctx, name)
			return gen, nil
		}

		lastErr = err

		if !domain.IsRetryable(err) {
			// Local misconfiguration says nothing about upstream
			// health and is never retried.
			metrics.ProviderErrors.WithLabelValues(name, "config").Inc()
			return nil, err
		}

		e.health.RecordFailure(ctx, name)
		metrics.ProviderErrors.WithLabelValues(name, "api").Inc()

		if ctx.Err() != nil {
			return nil, lastErr
		}

		slog.Warn("provider call failed",
			"provider", name,
			"attempt", attempt+1,
			"max_attempts", e.retry.MaxAttempts,
			"error", err,
		)
	}

	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
