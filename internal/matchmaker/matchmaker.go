// Package matchmaker implements the periodic pass that promotes queued
// rooms into balanced teams (4.F in the design notes). It is pure
// decision-making: given a snapshot of a mode's queue it returns the teams
// to form, and leaves mutating the Store to the event engine.
package matchmaker

import (
	"sort"
	"time"

	"github.com/damody/erps/internal/model"
	"github.com/samber/lo"
)

// Tolerance defaults, per spec 4.F.2.
const (
	DefaultBaseTolerance = 50.0
	DefaultSlope         = 20.0
	DefaultToleranceCap  = 400.0
)

// ToleranceWindow computes W = base + elapsed_seconds*slope, capped.
func ToleranceWindow(enteredAt, now time.Time, base, slope, cap_ float64) float64 {
	elapsed := now.Sub(enteredAt).Seconds()
	w := base + elapsed*slope
	if w > cap_ {
		w = cap_
	}
	return w
}

// BlacklistCheck reports whether any member of a conflicts with any member
// of b, checked symmetrically.
type BlacklistCheck func(a, b string) bool

// RoomMembers resolves a room id's current member list; supplied by the
// caller so this package never touches Store directly.
type RoomMembers func(roomID string) []string

// Pairing is a proposed match: two teams of room ids ready to be promoted
// to prestart together.
type Pairing struct {
	Mode  string
	SideA []string // room ids
	SideB []string // room ids
}

// sortQueue orders entries oldest-first, tie-broken by room id, which is
// the ordering guarantee from spec 4.F: a party that has waited longer is
// always considered before a younger one of equal rating proximity.
func sortQueue(entries []*model.QueueEntry) []*model.QueueEntry {
	out := append([]*model.QueueEntry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EnteredAt.Equal(out[j].EnteredAt) {
			return out[i].EnteredAt.Before(out[j].EnteredAt)
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

// AssembleMatches scans a mode's queue snapshot and greedily assembles as
// many side-A/side-B pairings as possible. teamSize is the per-mode full
// team size; base/slope/cap parameterize the tolerance window (zero values
// mean "use the package defaults"). isBlacklisted and members let this
// package stay pure with respect to Store.
func AssembleMatches(mode string, entries []*model.QueueEntry, now time.Time, teamSize int, base, slope, cap_ float64, members RoomMembers, isBlacklisted BlacklistCheck) []Pairing {
	if base == 0 {
		base = DefaultBaseTolerance
	}
	if slope == 0 {
		slope = DefaultSlope
	}
	if cap_ == 0 {
		cap_ = DefaultToleranceCap
	}

	queue := sortQueue(entries)
	used := make(map[string]bool, len(queue))
	var pairings []Pairing

	for i, seed := range queue {
		if used[seed.RoomID] {
			continue
		}
		w := ToleranceWindow(seed.EnteredAt, now, base, slope, cap_)

		sideA := assembleSide(queue, used, seed, w, teamSize)
		if len(sideA) == 0 {
			continue
		}
		sizeA := sumPartySize(sideA)
		if sizeA < teamSize {
			// Not enough candidates yet for a full side; release the
			// tentative reservation and try again on a later tick.
			for _, e := range sideA {
				used[e.RoomID] = false
			}
			continue
		}

		// Find a second seed not already used for side B.
		var sideB []*model.QueueEntry
		for j := i + 1; j < len(queue); j++ {
			cand := queue[j]
			if used[cand.RoomID] {
				continue
			}
			if absf(cand.TeamScoreAvg-seed.TeamScoreAvg) > w {
				continue
			}
			wB := ToleranceWindow(cand.EnteredAt, now, base, slope, cap_)
			candidate := assembleSide(queue, used, cand, wB, teamSize)
			if sumPartySize(candidate) < teamSize {
				for _, e := range candidate {
					used[e.RoomID] = false
				}
				continue
			}
			if !sidesCompatible(sideA, candidate, members, isBlacklisted) {
				for _, e := range candidate {
					used[e.RoomID] = false
				}
				continue
			}
			sideB = candidate
			break
		}

		if len(sideB) == 0 {
			// No opposing side available yet; release side A's
			// reservation so those rooms remain eligible on the next tick.
			for _, e := range sideA {
				used[e.RoomID] = false
			}
			continue
		}

		pairings = append(pairings, Pairing{
			Mode:  mode,
			SideA: roomIDs(sideA),
			SideB: roomIDs(sideB),
		})
	}

	return pairings
}

// assembleSide greedily grows a side starting from seed, adding entries
// whose team_score_avg lies within w of the seed, without exceeding
// teamSize total party members. It marks every entry it reserves as used,
// even if the side ends up incomplete — the caller is responsible for
// releasing the reservation if assembly fails.
func assembleSide(queue []*model.QueueEntry, used map[string]bool, seed *model.QueueEntry, w float64, teamSize int) []*model.QueueEntry {
	var side []*model.QueueEntry
	size := 0

	tryAdd := func(e *model.QueueEntry) bool {
		if used[e.RoomID] {
			return false
		}
		if size+e.PartySize > teamSize {
			return false
		}
		if absf(e.TeamScoreAvg-seed.TeamScoreAvg) > w {
			return false
		}
		used[e.RoomID] = true
		side = append(side, e)
		size += e.PartySize
		return true
	}

	if !tryAdd(seed) {
		return nil
	}
	for _, e := range queue {
		if size >= teamSize {
			break
		}
		if e.RoomID == seed.RoomID {
			continue
		}
		tryAdd(e)
	}
	return side
}

func sidesCompatible(sideA, sideB []*model.QueueEntry, members RoomMembers, isBlacklisted BlacklistCheck) bool {
	usersA := lo.FlatMap(sideA, func(e *model.QueueEntry, _ int) []string { return members(e.RoomID) })
	usersB := lo.FlatMap(sideB, func(e *model.QueueEntry, _ int) []string { return members(e.RoomID) })
	for _, a := range usersA {
		for _, b := range usersB {
			if isBlacklisted(a, b) {
				return false
			}
		}
	}
	return true
}

func sumPartySize(entries []*model.QueueEntry) int {
	total := 0
	for _, e := range entries {
		total += e.PartySize
	}
	return total
}

func roomIDs(entries []*model.QueueEntry) []string {
	return lo.Map(entries, func(e *model.QueueEntry, _ int) string { return e.RoomID })
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
