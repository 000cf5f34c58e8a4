package app

import "time"

// CallerClass determines the query ceiling and feature gating.
type CallerClass int

const (
	CallerGuest CallerClass = iota
	CallerRegistered
)

// RateWindow is the per-session fixed-window counter. It is not
// persisted and lives for the life of one client session.
type RateWindow struct {
	Start time.Time
	Count int
}

// RateLimiter is a coarse fixed-window throttle. A burst of up to twice
// the ceiling can straddle a window boundary.
type RateLimiter struct {
	window          time.Duration
	guestLimit      int
	registeredLimit int
}

func NewRateLimiter(window time.Duration, guestLimit, registeredLimit int) *RateLimiter {
	if window <= 0 {
		window = 60 * time.Second
	}
	if guestLimit <= 0 {
		guestLimit = 10
	}
	if registeredLimit <= 0 {
		registeredLimit = 30
	}
	return &RateLimiter{
		window:          window,
		guestLimit:      guestLimit,
		registeredLimit: registeredLimit,
	}
}

func (l *RateLimiter) ceiling(class CallerClass) int {
	if class == CallerRegistered {
		return l.registeredLimit
	}
	return l.guestLimit
}

// Allow checks the window and increments the counter on success. At or
// above the ceiling it returns a *RateLimitError carrying the floored
// remaining cooldown.
func (l *RateLimiter) Allow(w *RateWindow, class CallerClass, now time.Time) error {
	if now.Sub(w.Start) > l.window {
		w.Start = now
		w.Count = 0
	}

	if w.Count >= l.ceiling(class) {
		remaining := int(l.window.Seconds() - now.Sub(w.Start).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		return &RateLimitError{RetryAfterSeconds: remaining}
	}

	w.Count++
	return nil
}
