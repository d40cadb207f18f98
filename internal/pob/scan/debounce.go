// Package scan turns frames from a video source into payloads for the
// attendance engine: decode, debounce, dispatch.
package scan

import "time"

// DefaultCooldown is how long an identical payload is suppressed after a
// delivery.  A badge held in front of the camera decodes on nearly every
// frame; without suppression every hold would toggle the person dozens of
// times.
const DefaultCooldown = 3 * time.Second

// Debouncer suppresses repeat deliveries of the same payload within a
// cooldown window.  A different payload always passes immediately, so two
// people scanning back to back are never throttled.
//
// Not safe for concurrent use; the detector calls it from a single
// goroutine.
type Debouncer struct {
	cooldown time.Duration

	lastPayload string
	lastAt      time.Time
}

// NewDebouncer returns a debouncer with the given cooldown.  A cooldown of
// zero or less falls back to DefaultCooldown.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{cooldown: cooldown}
}

// Allow reports whether the payload should be delivered at time now, and if
// so records the delivery.  Suppressed payloads do not extend the window.
func (d *Debouncer) Allow(payload string, now time.Time) bool {
	if payload == d.lastPayload && now.Sub(d.lastAt) <= d.cooldown {
		return false
	}
	d.lastPayload = payload
	d.lastAt = now
	return true
}
