package resilience

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is an immutable, process-wide configuration value. The
// full policy runs against each provider before failover moves on.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Base:         2,
		MaxDelay:     30 * time.Second,
	}
}

// Delay computes the wait before retry number retry (0-based): the
// capped exponential min(maxDelay, initial*base^retry) plus 0-25%
// random jitter against thundering herds.
func (p RetryPolicy) Delay(retry int) time.Duration {
	backoff := float64(p.InitialDelay) * math.Pow(p.Base, float64(retry))
	if capped := float64(p.MaxDelay); backoff > capped {
		backoff = capped
	}
	jitter := backoff * 0.25 * rand.Float64()
	return time.Duration(backoff + jitter)
}

// FailoverPolicy is the ordered provider list tried after the primary
// exhausts its retry budget. An explicitly named provider bypasses it.
type FailoverPolicy struct {
	Providers []string
}
