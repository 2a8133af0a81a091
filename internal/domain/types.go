package domain

import "time"

// GenerationRequest is the immutable input to one pipeline run.
// It is created per call and discarded after the response is built.
type GenerationRequest struct {
	Prompt    string
	Provider  string
	Model     string
	EUOnly    bool
	TenantID  string
	LicenseID string
}

// SanitizedPrompt is the redacted form of a prompt. PIIFound reports
// whether at least one category matched.
type SanitizedPrompt struct {
	Text     string
	PIIFound bool
}

// GenerationResult is the user-facing outcome of a completed request.
type GenerationResult struct {
	Content         string `json:"content"`
	TokensUsed      int    `json:"tokens_used"`
	CreditsDeducted int64  `json:"credits_deducted"`
	PIIDetected     bool   `json:"pii_detected"`
	ProviderUsed    string `json:"provider_used"`
	EUCompliant     bool   `json:"eu_compliant"`
	FallbackApplied bool   `json:"fallback_applied"`
}

// UsageRecord captures the outcome of one completed request for the
// external usage recorder. Created once, handed off, not retained.
type UsageRecord struct {
	RequestID       string    `json:"request_id"`
	TenantID        string    `json:"tenant_id"`
	LicenseID       string    `json:"license_id"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Tokens          int       `json:"tokens"`
	Credits         int64     `json:"credits"`
	PIIDetected     bool      `json:"pii_detected"`
	EUCompliant     bool      `json:"eu_compliant"`
	FallbackApplied bool      `json:"fallback_applied"`
	Status          string    `json:"status"`
	LatencyMs       int64     `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// License is the directory view of a prepaid license key.
type License struct {
	TenantID         string
	Active           bool
	ExpiresAt        time.Time
	CreditsRemaining int64
}
