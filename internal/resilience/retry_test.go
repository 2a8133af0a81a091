package resilience

import (
	"testing"
	"time"
)

func TestRetryPolicy_DelayGrowsExponentially(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, Base: 2, MaxDelay: 30 * time.Second}

	for retry, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		d := p.Delay(retry)
		if d < base {
			t.Errorf("Delay(%d) = %v, want >= %v", retry, d, base)
		}
		// Jitter adds at most 25%.
		if max := base + base/4; d > max {
			t.Errorf("Delay(%d) = %v, want <= %v", retry, d, max)
		}
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 20, InitialDelay: time.Second, Base: 2, MaxDelay: 30 * time.Second}

	d := p.Delay(10) // uncapped would be 1024s
	if max := 30*time.Second + 30*time.Second/4; d > max {
		t.Errorf("Delay(10) = %v, want <= %v (cap plus jitter)", d, max)
	}
	if d < 30*time.Second {
		t.Errorf("Delay(10) = %v, want >= cap", d)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 || p.InitialDelay != time.Second || p.Base != 2 || p.MaxDelay != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", p)
	}
}
