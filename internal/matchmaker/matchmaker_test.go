package matchmaker

import (
	"testing"
	"time"

	"github.com/damody/erps/internal/model"
)

func noBlacklist(a, b string) bool { return false }

func singleMember(roomID string) []string { return []string{roomID} }

func TestAssembleMatches_PairsTwoEqualSoloQueues(t *testing.T) {
	now := time.Now()
	entries := []*model.QueueEntry{
		{RoomID: "r1", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-1 * time.Second)},
		{RoomID: "r2", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-900 * time.Millisecond)},
	}

	pairings := AssembleMatches("ng1v1", entries, now, 1, 0, 0, 0, singleMember, noBlacklist)
	if len(pairings) != 1 {
		t.Fatalf("expected 1 pairing, got %d", len(pairings))
	}
	if len(pairings[0].SideA) != 1 || len(pairings[0].SideB) != 1 {
		t.Fatalf("expected 1v1, got %v vs %v", pairings[0].SideA, pairings[0].SideB)
	}
}

func TestAssembleMatches_BlacklistExcludesPairing(t *testing.T) {
	now := time.Now()
	entries := []*model.QueueEntry{
		{RoomID: "rX", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-5 * time.Second)},
		{RoomID: "rY", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-4 * time.Second)},
	}
	members := func(roomID string) []string {
		if roomID == "rX" {
			return []string{"X"}
		}
		return []string{"Y"}
	}
	blacklisted := func(a, b string) bool {
		return (a == "X" && b == "Y") || (a == "Y" && b == "X")
	}

	pairings := AssembleMatches("ng1v1", entries, now, 1, 0, 0, 0, members, blacklisted)
	if len(pairings) != 0 {
		t.Fatalf("expected no pairings between blacklisted users, got %d", len(pairings))
	}
}

func TestAssembleMatches_IncompatibleToleranceNotPaired(t *testing.T) {
	now := time.Now()
	entries := []*model.QueueEntry{
		{RoomID: "r1", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now},
		{RoomID: "r2", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 2000, EnteredAt: now},
	}
	pairings := AssembleMatches("ng1v1", entries, now, 1, 10, 0, 0, singleMember, noBlacklist)
	if len(pairings) != 0 {
		t.Fatalf("expected no pairing outside tolerance window, got %d", len(pairings))
	}
}

func TestToleranceWindow_CapsAtMax(t *testing.T) {
	enteredAt := time.Now().Add(-1000 * time.Second)
	w := ToleranceWindow(enteredAt, time.Now(), 50, 20, 400)
	if w != 400 {
		t.Fatalf("expected window capped at 400, got %v", w)
	}
}

func TestAssembleMatches_OlderPartyPreferredOverYounger(t *testing.T) {
	now := time.Now()
	// r1 is the oldest and should be matched first against r2 (also old),
	// leaving r3 (younger, equal score) unmatched this tick.
	entries := []*model.QueueEntry{
		{RoomID: "r3", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now},
		{RoomID: "r1", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-10 * time.Second)},
		{RoomID: "r2", Mode: "ng1v1", PartySize: 1, TeamScoreAvg: 1000, EnteredAt: now.Add(-9 * time.Second)},
	}

	pairings := AssembleMatches("ng1v1", entries, now, 1, 0, 0, 0, singleMember, noBlacklist)
	if len(pairings) != 1 {
		t.Fatalf("expected exactly one pairing, got %d", len(pairings))
	}
	got := map[string]bool{}
	for _, id := range pairings[0].SideA {
		got[id] = true
	}
	for _, id := range pairings[0].SideB {
		got[id] = true
	}
	if !got["r1"] || !got["r2"] || got["r3"] {
		t.Fatalf("expected r1+r2 matched first, got %v", got)
	}
}
