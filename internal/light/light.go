package light

import (
	"sync"
	"time"
)

// FadeCallback computes a channel's next write instruction. Given the
// platform's maximum hardware fade length and the current time, it returns
// the brightness to write, the fade duration in ms the hardware should run,
// and whether the transition is complete once this instruction is applied.
type FadeCallback func(maxFadeMs int64, now time.Time) (brightness float64, fadeMs int64, done bool)

// Platform is the capability a concrete hardware family provides to its
// channels. MaxFadeMs is the longest fade one write command can carry; zero
// means the hardware cannot fade and written levels latch immediately.
type Platform interface {
	MaxFadeMs() int64
}

// Light is one controllable output on the bus. It holds at most one pending
// fade request and caches the terminal brightness once a fade reports done,
// so completed channels are never recomputed until the next request.
type Light struct {
	num int64
	sys *System
	hw  Platform

	mu       sync.Mutex
	callback FadeCallback
	cached   *float64
}

// NewLight creates a channel at bus address num, owned by sys.
func NewLight(num int64, sys *System, hw Platform) *Light {
	return &Light{num: num, sys: sys, hw: hw}
}

// Number returns the hardware bus address.
func (l *Light) Number() int64 { return l.num }

// SetFade stores cb as the pending transition and marks the light dirty in
// the owning system. Any previous request or cached terminal value is
// discarded. Nothing is computed here; evaluation happens on the next tick.
func (l *Light) SetFade(cb FadeCallback) {
	l.mu.Lock()
	l.callback = cb
	l.cached = nil
	l.mu.Unlock()
	l.sys.MarkDirty(l)
}

// Evaluate returns brightness, remaining fade ms and completion state at now.
// A completed fade is cached so later calls return the cached value with a
// zero duration, without invoking the callback again.
func (l *Light) Evaluate(now time.Time) (float64, int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return *l.cached, 0, true
	}
	if l.callback == nil {
		// marked dirty without a request; nothing to write
		return 0, 0, true
	}
	brightness, fadeMs, done := l.callback(l.hw.MaxFadeMs(), now)
	if done {
		b := brightness
		l.cached = &b
	}
	return brightness, fadeMs, done
}
