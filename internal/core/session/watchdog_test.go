package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualWatchdogConfig keeps the poll goroutine from firing during a test.
func manualWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{IdleThreshold: 10 * time.Second, PollInterval: time.Hour}
}

func TestWatchdog_FiresAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)

	var fired atomic.Int32
	w.Arm(func() { fired.Add(1) })
	defer w.Disarm()
	gen := w.currentGeneration()

	clock.Advance(9 * time.Second)
	assert.False(t, w.check(gen))

	clock.Advance(2 * time.Second)
	assert.True(t, w.check(gen))
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdog_ExactThresholdDoesNotFire(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)
	w.Arm(func() { t.Fatal("unexpected stall") })
	defer w.Disarm()

	clock.Advance(10 * time.Second)
	assert.False(t, w.check(w.currentGeneration()))
}

func TestWatchdog_LatchedUntilActivity(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)

	var fired atomic.Int32
	w.Arm(func() { fired.Add(1) })
	defer w.Disarm()
	gen := w.currentGeneration()

	clock.Advance(11 * time.Second)
	assert.True(t, w.check(gen))
	clock.Advance(5 * time.Second)
	assert.False(t, w.check(gen))
	assert.Equal(t, int32(1), fired.Load())

	w.RecordActivity()
	clock.Advance(11 * time.Second)
	assert.True(t, w.check(gen))
	assert.Equal(t, int32(2), fired.Load())
}

func TestWatchdog_ActivityResetsIdleClock(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)
	w.Arm(func() { t.Fatal("unexpected stall") })
	defer w.Disarm()
	gen := w.currentGeneration()

	for i := 0; i < 5; i++ {
		clock.Advance(6 * time.Second)
		w.RecordActivity()
		assert.False(t, w.check(gen))
	}
}

func TestWatchdog_DisarmIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)
	w.Arm(func() { t.Fatal("unexpected stall") })
	gen := w.currentGeneration()

	w.Disarm()
	w.Disarm()
	assert.False(t, w.Armed())

	clock.Advance(time.Minute)
	assert.False(t, w.check(gen))
}

func TestWatchdog_RearmIgnoresOldGeneration(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)

	var fired atomic.Int32
	w.Arm(func() { fired.Add(1) })
	old := w.currentGeneration()
	w.Arm(func() { fired.Add(10) })
	defer w.Disarm()

	clock.Advance(11 * time.Second)
	assert.False(t, w.check(old))
	assert.True(t, w.check(w.currentGeneration()))
	assert.Equal(t, int32(10), fired.Load())
}

func TestWatchdog_DisarmFromCallback(t *testing.T) {
	clock := newFakeClock()
	w := NewWatchdog(manualWatchdogConfig(), clock.Now, nil)
	w.Arm(func() { w.Disarm() })

	clock.Advance(11 * time.Second)
	assert.True(t, w.check(w.currentGeneration()))
	assert.False(t, w.Armed())
}

func TestWatchdog_PollsOnInterval(t *testing.T) {
	w := NewWatchdog(WatchdogConfig{IdleThreshold: 5 * time.Millisecond, PollInterval: 2 * time.Millisecond}, nil, nil)

	fired := make(chan struct{}, 1)
	w.Arm(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	defer w.Disarm()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog never fired")
	}
}
