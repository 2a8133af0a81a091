package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

func TestInMemoryLedger_Deduct(t *testing.T) {
	l := NewInMemoryLedger()
	l.SetBalance("key-1", 100)

	balance, err := l.Deduct(context.Background(), "key-1", 30)
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}
}

func TestInMemoryLedger_InsufficientCredits(t *testing.T) {
	l := NewInMemoryLedger()
	l.SetBalance("key-1", 10)

	_, err := l.Deduct(context.Background(), "key-1", 11)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Errorf("expected ErrInsufficientCredits, got %v", err)
	}
	if got := l.Balance("key-1"); got != 10 {
		t.Errorf("failed deduction must not change balance, got %d", got)
	}
}

func TestInMemoryLedger_UnknownKey(t *testing.T) {
	l := NewInMemoryLedger()

	_, err := l.Deduct(context.Background(), "nope", 1)
	if !errors.Is(err, domain.ErrLicenseNotFound) {
		t.Errorf("expected ErrLicenseNotFound, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentDeductionsNeverOverdraw(t *testing.T) {
	l := NewInMemoryLedger()
	l.SetBalance("key-1", 100)

	const goroutines = 50
	var wg sync.WaitGroup
	var succeeded, failed int
	var mu sync.Mutex

	// 50 goroutines each try to take 10 credits; only 10 can win.
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deduct(context.Background(), "key-1", 10)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, domain.ErrInsufficientCredits) {
				failed++
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("%d deductions succeeded, want exactly 10", succeeded)
	}
	if failed != goroutines-10 {
		t.Errorf("%d deductions failed, want %d", failed, goroutines-10)
	}
	if got := l.Balance("key-1"); got != 0 {
		t.Errorf("final balance = %d, want 0", got)
	}
}
