package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/auth"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/compliance"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/license"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/pipeline"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/resilience"
	"github.com/knackw/ai-orchestra-gateway-sub000/internal/usage"
)

type HandlerConfig struct {
	Licenses license.Directory
	Pipeline *pipeline.Pipeline
	Router   *compliance.Router

	// Health must be the same tracker the executor records outcomes
	// through; wiring a different one leaves the admin surface blind.
	Health resilience.HealthReporter

	// Usage is optional; when set, admin consumption reporting is
	// served from it.
	Usage usage.TotalsReader

	// AdminAuth guards /admin routes; nil leaves them open, for
	// deployments that front the gateway with their own auth proxy.
	AdminAuth *auth.Middleware
}

type Handler struct {
	licenses license.Directory
	pipeline *pipeline.Pipeline
	router   *compliance.Router
	health   resilience.HealthReporter
	usage    usage.TotalsReader
	mux      *http.ServeMux
}

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	EUOnly   bool   `json:"eu_only,omitempty"`
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		licenses: cfg.Licenses,
		pipeline: cfg.Pipeline,
		router:   cfg.Router,
		health:   cfg.Health,
		usage:    cfg.Usage,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/generate", h.handleGenerate)
	h.mux.HandleFunc("GET /v1/providers", h.handleListProviders)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	adminHealth := http.HandlerFunc(h.handleAdminHealth)
	adminReset := http.HandlerFunc(h.handleAdminBreakerReset)
	adminUsage := http.HandlerFunc(h.handleAdminUsage)
	if cfg.AdminAuth != nil {
		h.mux.Handle("GET /admin/providers/health",
			cfg.AdminAuth.RequireAuth(cfg.AdminAuth.RequirePermission(auth.PermissionHealthRead)(adminHealth)))
		h.mux.Handle("POST /admin/providers/{provider}/reset",
			cfg.AdminAuth.RequireAuth(cfg.AdminAuth.RequirePermission(auth.PermissionBreakerReset)(adminReset)))
		h.mux.Handle("GET /admin/usage/{tenant}",
			cfg.AdminAuth.RequireAuth(cfg.AdminAuth.RequirePermission(auth.PermissionUsageRead)(adminUsage)))
	} else {
		h.mux.Handle("GET /admin/providers/health", adminHealth)
		h.mux.Handle("POST /admin/providers/{provider}/reset", adminReset)
		h.mux.Handle("GET /admin/usage/{tenant}", adminUsage)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	licenseKey := auth.ExtractBearerToken(r)
	if licenseKey == "" {
		writeError(w, http.StatusUnauthorized, "missing license key")
		return
	}

	lic, err := h.licenses.Lookup(ctx, licenseKey)
	if err != nil {
		slog.Warn("license lookup rejected", "error", err)
		writeLicenseError(w, err)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.pipeline.Process(ctx, domain.GenerationRequest{
		Prompt:    req.Prompt,
		Provider:  req.Provider,
		Model:     req.Model,
		EUOnly:    req.EUOnly,
		TenantID:  lic.TenantID,
		LicenseID: licenseKey,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		Name         string                  `json:"name"`
		Region       string                  `json:"region"`
		EUCompliant  bool                    `json:"eu_compliant"`
		Text         bool                    `json:"text"`
		Vision       bool                    `json:"vision"`
		Transparency compliance.Transparency `json:"transparency"`
	}

	var infos []providerInfo
	for _, name := range h.router.Names() {
		d, ok := h.router.Describe(name)
		if !ok {
			continue
		}
		infos = append(infos, providerInfo{
			Name:         d.Name,
			Region:       d.Region,
			EUCompliant:  d.GDPRCompliant,
			Text:         d.Text,
			Vision:       d.Vision,
			Transparency: d.Transparency,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"providers": infos})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := make(map[string]resilience.Status)
	status := "healthy"

	if h.health != nil {
		snapshot, err := h.health.Snapshot(r.Context())
		if err != nil {
			slog.Error("health snapshot failed", "error", err)
		}
		for _, ph := range snapshot {
			providers[ph.Provider] = ph.Status
			if ph.Status == resilience.StatusUnhealthy {
				status = "degraded"
			}
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"version":   "0.2.0",
		"providers": providers,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	var snapshot []resilience.ProviderHealth
	if h.health != nil {
		var err error
		snapshot, err = h.health.Snapshot(r.Context())
		if err != nil {
			slog.Error("health snapshot failed", "error", err)
			writeError(w, http.StatusInternalServerError, "health snapshot failed")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"providers": snapshot})
}

func (h *Handler) handleAdminBreakerReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing provider")
		return
	}

	if h.health != nil {
		if err := h.health.Reset(r.Context(), name); err != nil {
			slog.Error("circuit breaker reset failed", "provider", name, "error", err)
			writeError(w, http.StatusInternalServerError, "reset failed")
			return
		}
	}
	slog.Info("circuit breaker reset", "provider", name)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"provider": name, "status": "reset"})
}

func (h *Handler) handleAdminUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeError(w, http.StatusNotImplemented, "usage reporting not configured")
		return
	}

	tenantID := r.PathValue("tenant")
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	tokens, credits, err := h.usage.TenantTotals(r.Context(), tenantID, since)
	if err != nil {
		slog.Error("usage totals query failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "usage query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"tokens":    tokens,
		"credits":   credits,
	})
}

func writeLicenseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLicenseInactive), errors.Is(err, domain.ErrLicenseExpired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	default:
		writeError(w, http.StatusUnauthorized, "invalid license key")
	}
}

// writePipelineError maps pipeline failures onto HTTP statuses without
// leaking upstream detail to the caller.
func writePipelineError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ProviderConfigError
	var billingErr *domain.BillingError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoCompliantProvider):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &billingErr):
		if errors.Is(err, domain.ErrInsufficientCredits) {
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
			return
		}
		writeError(w, http.StatusInternalServerError, "billing failed")
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadGateway, "provider not configured")
	case errors.Is(err, domain.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "provider temporarily unavailable")
	default:
		slog.Error("generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "generation failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
