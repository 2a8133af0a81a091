// Package resilience invokes providers with bounded retries, per-provider
// circuit breaking and ordered failover.
//
// Health state is the only mutable object shared across concurrently
// executing pipelines. All counter and timestamp mutation goes through
// the tracker's record methods; raw counters are never exposed for
// external mutation.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/metrics"
)

// Status is the derived health classification of a provider.
type Status string

const (
	StatusHealthy   Status = "healthy"   // 0-1 consecutive failures
	StatusDegraded  Status = "degraded"  // 2-4 consecutive failures
	StatusUnhealthy Status = "unhealthy" // >=5, circuit open
)

// HealthTracker records call outcomes and gates calls while a circuit
// is open. Implementations must be safe for concurrent use; two
// concurrent failures must both be counted.
type HealthTracker interface {
	// Allow returns nil if a call to the provider may proceed, or
	// domain.ErrCircuitOpen while the circuit is open. Rejection does
	// not touch any counters.
	Allow(ctx context.Context, provider string) error

	// RecordSuccess resets consecutive failures to zero and closes the
	// circuit, regardless of prior state.
	RecordSuccess(ctx context.Context, provider string)

	// RecordFailure increments the consecutive and total failure
	// counters; the failure that reaches the threshold opens the circuit.
	RecordFailure(ctx context.Context, provider string)
}

// HealthReporter extends HealthTracker with the operator surface: a
// full state snapshot and a manual circuit reset. The admin API must
// be handed the same tracker the executor records outcomes through,
// otherwise it reports and resets state nobody is writing to.
type HealthReporter interface {
	HealthTracker
	Snapshot(ctx context.Context) ([]ProviderHealth, error)
	Reset(ctx context.Context, provider string) error
}

// HealthConfig tunes circuit behavior.
type HealthConfig struct {
	FailureThreshold  int           // consecutive failures that open the circuit
	DegradedThreshold int           // consecutive failures that mark degraded
	Cooldown          time.Duration // how long an open circuit rejects calls
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold:  5,
		DegradedThreshold: 2,
		Cooldown:          5 * time.Minute,
	}
}

// ProviderHealth is a read-only snapshot of one provider's state.
type ProviderHealth struct {
	Provider            string    `json:"provider"`
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int64     `json:"total_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	CircuitOpenUntil    time.Time `json:"circuit_open_until,omitempty"`
}

type healthState struct {
	mu                  sync.Mutex
	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	lastFailure         time.Time
	lastSuccess         time.Time
	circuitOpenUntil    time.Time
}

// Registry tracks per-provider health in process memory. State is
// created lazily, lives for the process lifetime and is reset only by
// explicit operator action.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*healthState
	config HealthConfig
	now    func() time.Time

	onOpen  func(provider string)
	onClose func(provider string)
}

var _ HealthReporter = (*Registry)(nil)

type RegistryOption func(*Registry)

// WithStateChangeHooks installs callbacks fired when a circuit opens or
// closes, for operator notifications.
func WithStateChangeHooks(onOpen, onClose func(provider string)) RegistryOption {
	return func(r *Registry) {
		r.onOpen = onOpen
		r.onClose = onClose
	}
}

func NewRegistry(cfg HealthConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		states: make(map[string]*healthState),
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(provider string) *healthState {
	r.mu.RLock()
	s, ok := r.states[provider]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.states[provider]; ok {
		return existing
	}
	s = &healthState{}
	r.states[provider] = s
	return s
}

func (r *Registry) Allow(ctx context.Context, provider string) error {
	s := r.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.circuitOpenUntil.IsZero() && r.now().Before(s.circuitOpenUntil) {
		return domain.ErrCircuitOpen
	}
	return nil
}

func (r *Registry) RecordSuccess(ctx context.Context, provider string) {
	s := r.get(provider)

	s.mu.Lock()
	// A cooldown that already lapsed means the circuit closed on its
	// own; only a still-open circuit warrants a recovery notification.
	wasOpen := !s.circuitOpenUntil.IsZero() && r.now().Before(s.circuitOpenUntil)
	s.consecutiveFailures = 0
	s.totalSuccesses++
	s.lastSuccess = r.now()
	s.circuitOpenUntil = time.Time{}
	s.mu.Unlock()

	metrics.CircuitState.WithLabelValues(provider).Set(0)

	if wasOpen && r.onClose != nil {
		r.onClose(provider)
	}
}

func (r *Registry) RecordFailure(ctx context.Context, provider string) {
	s := r.get(provider)

	s.mu.Lock()
	s.consecutiveFailures++
	s.totalFailures++
	s.lastFailure = r.now()
	opened := false
	if s.consecutiveFailures >= r.config.FailureThreshold {
		wasOpen := !s.circuitOpenUntil.IsZero() && r.now().Before(s.circuitOpenUntil)
		s.circuitOpenUntil = r.now().Add(r.config.Cooldown)
		opened = !wasOpen
	}
	status := r.statusLocked(s)
	s.mu.Unlock()

	metrics.CircuitState.WithLabelValues(provider).Set(gaugeValue(status))

	if opened && r.onOpen != nil {
		r.onOpen(provider)
	}
}

func gaugeValue(status Status) float64 {
	switch status {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Reset clears a provider's state. Operator action only.
func (r *Registry) Reset(ctx context.Context, provider string) error {
	s := r.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.circuitOpenUntil = time.Time{}
	metrics.CircuitState.WithLabelValues(provider).Set(0)
	return nil
}

// Status derives the health classification for a provider.
func (r *Registry) Status(provider string) Status {
	s := r.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.statusLocked(s)
}

func (r *Registry) statusLocked(s *healthState) Status {
	switch {
	case s.consecutiveFailures >= r.config.FailureThreshold:
		return StatusUnhealthy
	case s.consecutiveFailures >= r.config.DegradedThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Snapshot returns the current state of every tracked provider.
func (r *Registry) Snapshot(ctx context.Context) ([]ProviderHealth, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.states))
	for name := range r.states {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	snapshot := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		s := r.get(name)
		s.mu.Lock()
		snapshot = append(snapshot, ProviderHealth{
			Provider:            name,
			Status:              r.statusLocked(s),
			ConsecutiveFailures: s.consecutiveFailures,
			TotalFailures:       s.totalFailures,
			TotalSuccesses:      s.totalSuccesses,
			LastFailure:         s.lastFailure,
			LastSuccess:         s.lastSuccess,
			CircuitOpenUntil:    s.circuitOpenUntil,
		})
		s.mu.Unlock()
	}
	return snapshot, nil
}
