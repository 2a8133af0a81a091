// Package pipeline orchestrates one generation request end to end:
// redaction, compliance routing, resilient provider invocation, atomic
// credit deduction and best-effort usage recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/compliance"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/ledger"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/metrics"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/notifications"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/redact"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/resilience"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/telemetry"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/usage"
)

const (
	statusSuccess       = "success"
	statusBillingFailed = "billing_failed"
)

// Config wires a Pipeline. RequestTimeout bounds redaction, routing and
// generation; a deduction already in flight when it expires is allowed
// to finish.
type Config struct {
	Router          *compliance.Router
	Executor        *resilience.Executor
	Ledger          ledger.Ledger
	Recorder        usage.Recorder
	Notifier        notifications.Notifier
	Failover        resilience.FailoverPolicy
	RequestTimeout  time.Duration
	DeductTimeout   time.Duration
	DefaultProvider string
}

type Pipeline struct {
	router          *compliance.Router
	executor        *resilience.Executor
	ledger          ledger.Ledger
	recorder        usage.Recorder
	notifier        notifications.Notifier
	failover        resilience.FailoverPolicy
	requestTimeout  time.Duration
	deductTimeout   time.Duration
	defaultProvider string
}

func New(cfg Config) *Pipeline {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 120 * time.Second
	}
	deductTimeout := cfg.DeductTimeout
	if deductTimeout == 0 {
		deductTimeout = 15 * time.Second
	}
	return &Pipeline{
		router:          cfg.Router,
		executor:        cfg.Executor,
		ledger:          cfg.Ledger,
		recorder:        cfg.Recorder,
		notifier:        cfg.Notifier,
		failover:        cfg.Failover,
		requestTimeout:  requestTimeout,
		deductTimeout:   deductTimeout,
		defaultProvider: cfg.DefaultProvider,
	}
}

// Process runs one request through the pipeline. Generated content is
// only ever returned after its credits were deducted; content that
// cannot be billed is discarded.
func (p *Pipeline) Process(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	start := time.Now()
	requestID := uuid.New().String()

	ctx, span := telemetry.StartSpan(ctx, "pipeline.process")
	defer span.End()
	telemetry.AddRequestAttributes(span, req.TenantID, req.Provider, requestID)

	if err := validate(req); err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	// Step 1: redaction. Fails open: a broken detector must not take
	// down generation, so the original prompt proceeds unredacted.
	prompt, piiFound, err := redact.Try(req.Prompt)
	if err != nil {
		slog.Error("redaction failed, proceeding with original prompt",
			"request_id", requestID,
			"error", err,
		)
	}
	if piiFound {
		metrics.PIIDetections.WithLabelValues(req.TenantID).Inc()
	}

	// Step 2: compliance routing.
	chain, route, err := p.resolveChain(req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(req.TenantID, req.Provider, "rejected").Inc()
		return nil, err
	}
	if route.FallbackApplied {
		metrics.ComplianceFallbacks.WithLabelValues(req.Provider, chain[0]).Inc()
	}

	// Step 3: resilient invocation.
	result, err := p.executor.Execute(genCtx, chain, prompt, req.Model)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(req.TenantID, req.Provider, "failed").Inc()
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}

	// Step 4: atomic deduction, exactly once, only after success. The
	// deduction context is detached from the caller: once generation
	// succeeded, an in-flight deduction is never cancelled mid-flight.
	credits := int64(result.Tokens)
	deductCtx, deductCancel := context.WithTimeout(context.WithoutCancel(ctx), p.deductTimeout)
	defer deductCancel()

	if _, err := p.ledger.Deduct(deductCtx, req.LicenseID, credits); err != nil {
		p.onBillingFailure(ctx, req, requestID, result, route, piiFound, credits, start, err)
		metrics.RequestsTotal.WithLabelValues(req.TenantID, result.Provider, "billing_failed").Inc()
		return nil, &domain.BillingError{Err: err}
	}

	metrics.CreditsDeducted.WithLabelValues(req.TenantID).Add(float64(credits))
	metrics.TokensTotal.WithLabelValues(req.TenantID, result.Provider).Add(float64(result.Tokens))
	metrics.RequestsTotal.WithLabelValues(req.TenantID, result.Provider, statusSuccess).Inc()
	metrics.RequestDuration.WithLabelValues(req.TenantID, result.Provider).Observe(time.Since(start).Seconds())

	response := &domain.GenerationResult{
		Content:         result.Content,
		TokensUsed:      result.Tokens,
		CreditsDeducted: credits,
		PIIDetected:     piiFound,
		ProviderUsed:    result.Provider,
		EUCompliant:     route.Compliant,
		FallbackApplied: route.FallbackApplied,
	}

	telemetry.AddOutcomeAttributes(span, result.Tokens, credits, piiFound, route.FallbackApplied)

	// Step 5: best-effort usage recording, after the user-facing result
	// is finalized. Its failure never reaches the caller.
	p.recordUsage(ctx, domain.UsageRecord{
		RequestID:       requestID,
		TenantID:        req.TenantID,
		LicenseID:       license.HashKey(req.LicenseID),
		Provider:        result.Provider,
		Model:           req.Model,
		Tokens:          result.Tokens,
		Credits:         credits,
		PIIDetected:     piiFound,
		EUCompliant:     route.Compliant,
		FallbackApplied: route.FallbackApplied,
		Status:          statusSuccess,
		LatencyMs:       time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	})

	slog.Info("request completed",
		"request_id", requestID,
		"tenant_id", req.TenantID,
		"provider", result.Provider,
		"tokens", result.Tokens,
		"credits", credits,
		"pii_detected", piiFound,
		"fallback_applied", route.FallbackApplied,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return response, nil
}

func validate(req domain.GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", domain.ErrInvalidRequest)
	}
	if req.LicenseID == "" {
		return fmt.Errorf("%w: missing license", domain.ErrInvalidRequest)
	}
	return nil
}

// resolveChain builds the ordered provider list for the resilience
// engine. An explicitly named provider bypasses failover entirely (the
// compliance router may still substitute it); an unnamed one gets the
// configured failover chain, filtered for compliance under EU-only.
func (p *Pipeline) resolveChain(req domain.GenerationRequest) ([]string, compliance.Route, error) {
	if req.Provider != "" {
		route, err := p.router.Resolve(req.Provider, req.EUOnly, compliance.CapabilityText)
		if err != nil {
			return nil, compliance.Route{}, err
		}
		return []string{route.Provider}, route, nil
	}

	candidates := p.failover.Providers
	if len(candidates) == 0 && p.defaultProvider != "" {
		candidates = []string{p.defaultProvider}
	}
	if len(candidates) == 0 {
		return nil, compliance.Route{}, fmt.Errorf("%w: no provider requested and no failover configured", domain.ErrInvalidRequest)
	}

	if !req.EUOnly {
		route, err := p.router.Resolve(candidates[0], false, compliance.CapabilityText)
		if err != nil {
			return nil, compliance.Route{}, err
		}
		return candidates, route, nil
	}

	var chain []string
	for _, name := range candidates {
		if d, ok := p.router.Describe(name); ok && d.GDPRCompliant && d.Text {
			chain = append(chain, name)
		}
	}
	if len(chain) == 0 {
		// Fall back to the router's own compliant set rather than
		// failing a request the table could still serve.
		chain = p.router.CompliantProviders(compliance.CapabilityText)
	}
	if len(chain) == 0 {
		return nil, compliance.Route{}, domain.ErrNoCompliantProvider
	}

	route := compliance.Route{
		Provider:        chain[0],
		Compliant:       true,
		FallbackApplied: chain[0] != candidates[0],
	}
	return chain, route, nil
}

func (p *Pipeline) onBillingFailure(ctx context.Context, req domain.GenerationRequest, requestID string, result *resilience.Result, route compliance.Route, piiFound bool, credits int64, start time.Time, err error) {
	reason := "ledger_error"
	if errors.Is(err, domain.ErrInsufficientCredits) {
		reason = "insufficient_credits"
	}
	metrics.BillingFailures.WithLabelValues(req.TenantID, reason).Inc()

	slog.Error("deduction failed after successful generation, discarding content",
		"request_id", requestID,
		"tenant_id", req.TenantID,
		"provider", result.Provider,
		"credits", credits,
		"reason", reason,
	)

	if p.notifier != nil && errors.Is(err, domain.ErrInsufficientCredits) {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if sendErr := p.notifier.Send(notifyCtx, notifications.Notification{
			Type:     notifications.NotificationCreditsExhausted,
			TenantID: req.TenantID,
			Message:  "license has insufficient credits",
		}); sendErr != nil {
			slog.Warn("credits-exhausted notification failed", "error", sendErr)
		}
	}

	p.recordUsage(ctx, domain.UsageRecord{
		RequestID:       requestID,
		TenantID:        req.TenantID,
		LicenseID:       license.HashKey(req.LicenseID),
		Provider:        result.Provider,
		Model:           req.Model,
		Tokens:          result.Tokens,
		Credits:         0,
		PIIDetected:     piiFound,
		EUCompliant:     route.Compliant,
		FallbackApplied: route.FallbackApplied,
		Status:          statusBillingFailed,
		LatencyMs:       time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC(),
	})
}

// recordUsage dispatches a record to the external recorder. Failures
// are logged and counted, never surfaced.
func (p *Pipeline) recordUsage(ctx context.Context, record domain.UsageRecord) {
	if p.recorder == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.recorder.Record(recordCtx, record); err != nil {
		metrics.UsageRecordFailures.Inc()
		slog.Warn("usage record dropped",
			"request_id", record.RequestID,
			"tenant_id", record.TenantID,
			"error", err,
		)
	}
}
