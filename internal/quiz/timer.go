package quiz

import (
	"sync"
	"time"
)

// ExpireFunc receives the result of an attempt auto-submitted by its timer.
type ExpireFunc func(Result)

// Timer counts an attempt down one tick at a time and submits it when the
// remaining time reaches zero. It never pauses; it stops on submission
// (by either path) or on Stop.
type Timer struct {
	attempt  *Attempt
	onExpire ExpireFunc
	now      func() time.Time

	ticks    <-chan time.Time
	stopTick func()

	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// TimerOption customizes a Timer.
type TimerOption func(*Timer)

// WithTickSource drives the timer from ch instead of a wall-clock ticker.
func WithTickSource(ch <-chan time.Time) TimerOption {
	return func(t *Timer) {
		t.ticks = ch
		t.stopTick = func() {}
	}
}

// WithClock sets the clock used to stamp auto-submitted results.
func WithClock(now func() time.Time) TimerOption {
	return func(t *Timer) {
		t.now = now
	}
}

// StartTimer launches the countdown goroutine for a. onExpire runs on the
// timer goroutine, at most once, and only if the expiry performed the
// submission.
func StartTimer(a *Attempt, interval time.Duration, onExpire ExpireFunc, opts ...TimerOption) *Timer {
	t := &Timer{
		attempt:  a,
		onExpire: onExpire,
		now:      time.Now,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ticks == nil {
		tk := time.NewTicker(interval)
		t.ticks = tk.C
		t.stopTick = tk.Stop
	}

	go t.run()
	return t
}

func (t *Timer) run() {
	defer close(t.finished)
	defer t.stopTick()

	for {
		select {
		case <-t.stop:
			return
		case <-t.attempt.Done():
			return
		case <-t.ticks:
			if _, expired := t.attempt.Tick(); !expired {
				continue
			}
			res, first, err := t.attempt.Submit(ReasonExpired, t.now())
			if err == nil && first && t.onExpire != nil {
				t.onExpire(res)
			}
			return
		}
	}
}

// Stop cancels the countdown. No tick is processed after Stop returns.
// Safe to call more than once and from any goroutine except the onExpire
// callback.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.finished
}

// Finished is closed once the timer goroutine has exited.
func (t *Timer) Finished() <-chan struct{} {
	return t.finished
}
