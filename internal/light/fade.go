package light

import "time"

// Fixed returns a callback that jumps straight to target. The transition is
// complete on first evaluation regardless of platform fade support.
func Fixed(target float64) FadeCallback {
	return func(int64, time.Time) (float64, int64, bool) {
		return target, 0, true
	}
}

// Linear returns a callback ramping from -> to over duration, starting at
// start.
//
// Platforms with hardware fades get the longest segment they support: once
// the remaining ramp fits within maxFadeMs, a single instruction carries the
// target brightness and the transition is complete (the hardware runs the
// fade). Longer ramps are cut into waypoint segments of maxFadeMs each; the
// scheduler revisits the channel when a segment ends. Platforms without
// fades (maxFadeMs <= 0) receive instantaneous levels with zero duration
// until the ramp has ended.
func Linear(from, to float64, duration time.Duration, start time.Time) FadeCallback {
	if duration <= 0 {
		return Fixed(to)
	}
	end := start.Add(duration)
	level := func(at time.Time) float64 {
		if !at.After(start) {
			return from
		}
		if !at.Before(end) {
			return to
		}
		return from + (to-from)*(float64(at.Sub(start))/float64(duration))
	}
	return func(maxFadeMs int64, now time.Time) (float64, int64, bool) {
		remaining := end.Sub(now)
		if remaining <= 0 {
			return to, 0, true
		}
		if maxFadeMs <= 0 {
			// no hardware fade: emit the current level, revisit next tick
			return level(now), 0, false
		}
		maxFade := time.Duration(maxFadeMs) * time.Millisecond
		if remaining > maxFade {
			return level(now.Add(maxFade)), maxFadeMs, false
		}
		return to, remaining.Milliseconds(), true
	}
}
