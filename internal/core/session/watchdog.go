package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultIdleThreshold = 10 * time.Second
	DefaultPollInterval  = 5 * time.Second
)

// WatchdogConfig controls stall detection.
type WatchdogConfig struct {
	IdleThreshold time.Duration
	PollInterval  time.Duration
}

func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		IdleThreshold: DefaultIdleThreshold,
		PollInterval:  DefaultPollInterval,
	}
}

// Watchdog detects that no data has arrived within the idle threshold.
// onStall fires at most once per threshold crossing; RecordActivity re-enables it.
type Watchdog struct {
	config WatchdogConfig
	now    func() time.Time
	logger *zap.SugaredLogger

	mu           sync.Mutex
	armed        bool
	fired        bool
	generation   uint64
	lastActivity time.Time
	onStall      func()
	stop         chan struct{}
}

func NewWatchdog(config WatchdogConfig, now func() time.Time, logger *zap.SugaredLogger) *Watchdog {
	if config.IdleThreshold <= 0 {
		config.IdleThreshold = DefaultIdleThreshold
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Watchdog{
		config: config,
		now:    now,
		logger: logger,
	}
}

// Arm starts periodic liveness checks. Arming an armed watchdog restarts it.
func (w *Watchdog) Arm(onStall func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarmLocked()
	w.armed = true
	w.fired = false
	w.generation++
	w.lastActivity = w.now()
	w.onStall = onStall
	w.stop = make(chan struct{})

	go w.poll(w.generation, w.stop)
}

// RecordActivity resets the idle clock and re-enables the stall callback.
func (w *Watchdog) RecordActivity() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastActivity = w.now()
	w.fired = false
}

// Disarm stops liveness checks. It never waits for the poll goroutine, so it
// is safe to call from inside onStall.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarmLocked()
}

func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watchdog) disarmLocked() {
	if !w.armed {
		return
	}
	w.armed = false
	w.onStall = nil
	close(w.stop)
	w.stop = nil
}

func (w *Watchdog) poll(generation uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.check(generation)
		}
	}
}

// check runs one liveness check. It reports whether onStall was invoked.
func (w *Watchdog) check(generation uint64) bool {
	w.mu.Lock()
	if !w.armed || w.generation != generation || w.fired {
		w.mu.Unlock()
		return false
	}
	idle := w.now().Sub(w.lastActivity)
	if idle <= w.config.IdleThreshold {
		w.mu.Unlock()
		return false
	}
	w.fired = true
	onStall := w.onStall
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Warnw("recording appears to be stalled, attempting to recover",
			"idle", idle,
			"threshold", w.config.IdleThreshold,
		)
	}
	if onStall != nil {
		onStall()
	}
	return true
}

// currentGeneration is used by tests to drive check without a ticker.
func (w *Watchdog) currentGeneration() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}
