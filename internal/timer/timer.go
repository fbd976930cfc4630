// Package timer implements the recoverable answer countdown. The countdown is
// derived from a durable start timestamp, so a fresh process can rebuild it
// from the store at any moment.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/cache"
	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// StorageKey is the single durable slot. Starting a timer overwrites it.
const StorageKey = "interview_timer"

type Option func(*Timer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithTickInterval sets how often the countdown is re-evaluated. Zero
// disables the background ticker; callers then drive Check themselves.
func WithTickInterval(d time.Duration) Option {
	return func(t *Timer) { t.interval = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Timer) { t.log = logger.Component(l, "timer") }
}

// Timer is safe for concurrent use.
type Timer struct {
	store    cache.Cache
	now      func() time.Time
	interval time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	state    *models.TimerState
	stopTick chan struct{}
	onTick   func(remaining int)
	onExpire func()
}

func New(store cache.Cache, opts ...Option) *Timer {
	t := &Timer{
		store:    store,
		now:      time.Now,
		interval: time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = logger.Component(nil, "timer")
	}
	return t
}

// OnTick registers a handler called with the remaining seconds on every tick.
func (t *Timer) OnTick(fn func(remaining int)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// OnExpire registers a handler called once when an active countdown reaches zero.
func (t *Timer) OnExpire(fn func()) {
	t.mu.Lock()
	t.onExpire = fn
	t.mu.Unlock()
}

// Restore rebuilds the countdown from the durable record. An expired or
// unreadable record is deleted and the timer stays inactive.
func (t *Timer) Restore(ctx context.Context) (models.TimerState, bool, error) {
	const op = "Timer.Restore"

	var st models.TimerState
	hit, err := t.store.GetJSON(ctx, StorageKey, &st)
	if err != nil {
		_ = t.store.Del(ctx, StorageKey)
		return models.TimerState{}, false, utils.E(utils.CodeUnavailable, op, "failed to read timer record", err)
	}
	if !hit {
		return models.TimerState{}, false, nil
	}

	remaining := st.Remaining(t.now())
	if remaining <= 0 {
		if err := t.store.Del(ctx, StorageKey); err != nil {
			t.log.WithError(err).Warn("failed to delete expired timer record")
		}
		t.mu.Lock()
		t.clearLocked()
		t.mu.Unlock()
		return models.TimerState{}, false, nil
	}

	t.mu.Lock()
	t.stopTickerLocked()
	t.state = &st
	t.startTickerLocked()
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"optimal_time": st.OptimalTime,
		"remaining":    remaining,
	}).Info("timer restored")
	return st, true, nil
}

// Start begins a new countdown of optimalTime seconds, replacing any running
// one. The question is marked as spoken.
func (t *Timer) Start(ctx context.Context, optimalTime int) error {
	const op = "Timer.Start"

	if optimalTime <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "optimal time must be > 0", nil)
	}

	now := t.now()
	st := models.TimerState{
		StartTime:      now.UnixMilli(),
		OptimalTime:    optimalTime,
		QuestionSpoken: true,
		Timestamp:      now.UnixMilli(),
	}

	t.mu.Lock()
	t.stopTickerLocked()
	t.state = &st
	t.startTickerLocked()
	t.mu.Unlock()

	if err := t.store.SetJSON(ctx, StorageKey, st, 0); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to persist timer record", err)
	}
	return nil
}

// Stop clears the countdown and its durable record.
func (t *Timer) Stop(ctx context.Context) error {
	const op = "Timer.Stop"

	t.mu.Lock()
	t.clearLocked()
	t.mu.Unlock()

	if err := t.store.Del(ctx, StorageKey); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to delete timer record", err)
	}
	return nil
}

// Remaining recomputes the seconds left from the start timestamp.
func (t *Timer) Remaining() int {
	return t.Check(context.Background())
}

// Active reports whether a countdown with time left exists.
func (t *Timer) Active() bool {
	return t.Remaining() > 0
}

// QuestionSpoken reports the flag of the active record.
func (t *Timer) QuestionSpoken() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != nil && t.state.QuestionSpoken
}

// State returns a copy of the active record.
func (t *Timer) State() (models.TimerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return models.TimerState{}, false
	}
	return *t.state, true
}

// Check evaluates the countdown. On the transition to zero it deletes the
// durable record and fires the expire handler exactly once.
func (t *Timer) Check(ctx context.Context) int {
	t.mu.Lock()
	if t.state == nil {
		t.mu.Unlock()
		return 0
	}
	remaining := t.state.Remaining(t.now())
	if remaining > 0 {
		t.mu.Unlock()
		return remaining
	}
	t.clearLocked()
	expire := t.onExpire
	t.mu.Unlock()

	if err := t.store.Del(ctx, StorageKey); err != nil {
		t.log.WithError(err).Warn("failed to delete expired timer record")
	}
	t.log.Info("timer expired")
	if expire != nil {
		expire()
	}
	return 0
}

func (t *Timer) clearLocked() {
	t.stopTickerLocked()
	t.state = nil
}

func (t *Timer) startTickerLocked() {
	if t.interval <= 0 {
		return
	}
	stop := make(chan struct{})
	t.stopTick = stop
	go t.run(stop, t.interval)
}

func (t *Timer) stopTickerLocked() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}

func (t *Timer) run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		remaining := t.Check(context.Background())

		t.mu.Lock()
		tick := t.onTick
		stopped := t.stopTick != stop
		t.mu.Unlock()

		if stopped {
			return
		}
		if tick != nil {
			tick(remaining)
		}
	}
}
