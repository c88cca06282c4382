package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTestError = errors.New("test error")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *testClock) {
	clock := &testClock{now: time.Unix(0, 0)}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func fail() error    { return errTestError }
func succeed() error { return nil }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())

	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if err := cb.Execute(fail); !errors.Is(err, errTestError) {
		t.Errorf("Expected test error, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Timeout: time.Minute})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("Expected state open, got: %v", cb.State())
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
	if called {
		t.Error("function must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Timeout: time.Minute})

	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Second})

	_ = cb.Execute(fail)
	clock.Advance(11 * time.Second)

	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe should pass, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: 10 * time.Second})

	_ = cb.Execute(fail)
	clock.Advance(11 * time.Second)
	_ = cb.Execute(fail)

	if cb.State() != StateOpen {
		t.Errorf("Expected state open, got: %v", cb.State())
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen right after reopening, got: %v", err)
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})

	var transitions []State
	cb.OnStateChange(func(from, to State) { transitions = append(transitions, to) })

	_ = cb.Execute(fail)
	cb.Reset()

	if len(transitions) != 2 || transitions[0] != StateOpen || transitions[1] != StateClosed {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}

func TestExecuteGeneric(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())

	got, err := Execute(cb, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", got, err)
	}
}
