package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_RecordThenSeen_ReplaysCachedResponse(t *testing.T) {
	w := New(time.Minute)
	now := time.Now()

	_, seen := w.Seen("u1", "join", "req1", now)
	assert.False(t, seen)

	w.Record("u1", "join", "req1", map[string]string{"room_id": "r1"}, now)

	resp, seen := w.Seen("u1", "join", "req1", now.Add(time.Second))
	assert.True(t, seen)
	assert.Equal(t, map[string]string{"room_id": "r1"}, resp)
}

func TestWindow_Seen_ExpiresAfterTTL(t *testing.T) {
	w := New(time.Second)
	now := time.Now()
	w.Record("u1", "join", "req1", "ok", now)

	_, seen := w.Seen("u1", "join", "req1", now.Add(2*time.Second))
	assert.False(t, seen)
}

func TestWindow_Seen_IgnoresEmptyRequestID(t *testing.T) {
	w := New(time.Minute)
	now := time.Now()
	w.Record("u1", "join", "", "ok", now)

	_, seen := w.Seen("u1", "join", "", now)
	assert.False(t, seen)
}

func TestWindow_Sweep_DropsExpiredEntries(t *testing.T) {
	w := New(time.Second)
	now := time.Now()
	w.Record("u1", "join", "req1", "ok", now)

	w.Sweep(now.Add(2 * time.Second))

	_, seen := w.Seen("u1", "join", "req1", now.Add(2*time.Second))
	assert.False(t, seen)
}
