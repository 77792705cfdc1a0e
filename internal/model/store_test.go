package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_QueueSnapshot_SkipsRoomsNoLongerQueued(t *testing.T) {
	s := NewStore()
	u := NewUser("alice", []string{"ng1v1"})
	s.Users["alice"] = u

	r := NewRoom("r1", "alice")
	r.Mode = "ng1v1"
	r.State = RoomQueued
	r.QueuedAt = time.Now()
	s.Rooms["r1"] = r
	s.EnqueueRoom("ng1v1", "r1")

	r2 := NewRoom("r2", "bob")
	r2.State = RoomIdle
	s.Rooms["r2"] = r2
	s.EnqueueRoom("ng1v1", "r2") // stale queue entry, room no longer queued

	snap := s.QueueSnapshot("ng1v1", func(string) int { return 1 })
	assert.Len(t, snap, 1)
	assert.Equal(t, "r1", snap[0].RoomID)
	assert.Equal(t, float64(1000), snap[0].TeamScoreAvg)
}

func TestStore_Blacklisted_IsSymmetric(t *testing.T) {
	s := NewStore()
	s.AddBlackList("alice", "bob")

	assert.True(t, s.Blacklisted("alice", "bob"))
	assert.True(t, s.Blacklisted("bob", "alice"))
	assert.False(t, s.Blacklisted("alice", "carol"))

	s.RemoveBlackList("alice", "bob")
	assert.False(t, s.Blacklisted("alice", "bob"))
}

func TestStore_PruneOfflineSince_KeepsOnlineUsers(t *testing.T) {
	s := NewStore()
	alice := NewUser("alice", nil)
	alice.Online = false
	s.Users["alice"] = alice
	bob := NewUser("bob", nil)
	bob.Online = true
	s.Users["bob"] = bob

	loggedOutAt := map[string]time.Time{
		"alice": time.Now().Add(-10 * time.Minute),
		"bob":   time.Now().Add(-10 * time.Minute),
	}

	s.PruneOfflineSince(time.Now().Add(-5*time.Minute), loggedOutAt)

	_, aliceStillThere := s.Users["alice"]
	_, bobStillThere := s.Users["bob"]
	assert.False(t, aliceStillThere)
	assert.True(t, bobStillThere)
	assert.Empty(t, loggedOutAt)
}
