// Package dedup implements the sliding-window idempotency check the event
// engine uses to tolerate duplicate MQTT deliveries: every mutating event
// is keyed on (user_id, verb, request_id) and re-delivery within the
// window is a no-op that replays the cached response.
package dedup

import (
	"time"
)

type entry struct {
	response interface{}
	seenAt   time.Time
}

// Window is a sliding deduplication window. It is only ever touched from
// the event engine's single goroutine, so it takes no lock of its own;
// Seen/Record assume single-threaded access like the rest of Store.
type Window struct {
	ttl     time.Duration
	entries map[string]entry
}

func New(ttl time.Duration) *Window {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Window{ttl: ttl, entries: make(map[string]entry)}
}

func key(userID, verb, requestID string) string {
	return userID + "\x00" + verb + "\x00" + requestID
}

// Seen reports whether (userID, verb, requestID) was recorded within the
// window, and if so returns the cached response to replay verbatim.
func (w *Window) Seen(userID, verb, requestID string, now time.Time) (interface{}, bool) {
	if requestID == "" {
		return nil, false
	}
	e, ok := w.entries[key(userID, verb, requestID)]
	if !ok {
		return nil, false
	}
	if now.Sub(e.seenAt) > w.ttl {
		return nil, false
	}
	return e.response, true
}

// Record stores the response produced for (userID, verb, requestID) so a
// redelivery within the window can be answered identically.
func (w *Window) Record(userID, verb, requestID string, response interface{}, now time.Time) {
	if requestID == "" {
		return
	}
	w.entries[key(userID, verb, requestID)] = entry{response: response, seenAt: now}
}

// Sweep drops entries older than the window, bounding memory use. The
// event engine calls this once per scheduler tick.
func (w *Window) Sweep(now time.Time) {
	for k, e := range w.entries {
		if now.Sub(e.seenAt) > w.ttl {
			delete(w.entries, k)
		}
	}
}
