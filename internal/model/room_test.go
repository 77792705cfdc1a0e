package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoom_RemoveMember_PromotesNextOldest(t *testing.T) {
	r := NewRoom("r1", "alice")
	r.AddMember("bob")
	r.AddMember("carol")

	newMaster, empty := r.RemoveMember("alice")

	assert.False(t, empty)
	assert.Equal(t, "bob", newMaster)
	assert.Equal(t, []string{"bob", "carol"}, r.Members)
}

func TestRoom_RemoveMember_LastMemberEmptiesRoom(t *testing.T) {
	r := NewRoom("r1", "alice")
	newMaster, empty := r.RemoveMember("alice")

	assert.True(t, empty)
	assert.Equal(t, "", newMaster)
}

func TestRoom_AllAccepted_RequiresEveryMember(t *testing.T) {
	r := NewRoom("r1", "alice")
	r.AddMember("bob")

	assert.False(t, r.AllAccepted())

	r.PrestartAcks["alice"] = true
	assert.False(t, r.AllAccepted())

	r.PrestartAcks["bob"] = true
	assert.True(t, r.AllAccepted())
}

func TestRoom_AnyDeclined(t *testing.T) {
	r := NewRoom("r1", "alice")
	r.AddMember("bob")
	r.PrestartAcks["alice"] = true
	r.PrestartAcks["bob"] = false

	assert.True(t, r.AnyDeclined())
}

func TestRoom_ResetPrestart_ClearsAcksAndGame(t *testing.T) {
	r := NewRoom("r1", "alice")
	r.PrestartAcks["alice"] = true
	r.GameID = "match_123"

	r.ResetPrestart()

	assert.Empty(t, r.PrestartAcks)
	assert.Equal(t, "", r.GameID)
}
