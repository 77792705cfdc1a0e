package rating

import "testing"

func TestUpdate_ZeroSumEqualTeams(t *testing.T) {
	teamA := TeamResult{"a1": 1000, "a2": 1000}
	teamB := TeamResult{"b1": 1200, "b2": 1200}

	deltasA, deltasB := Update(teamA, teamB, true)

	sum := 0
	for _, d := range deltasA {
		sum += d.Points
	}
	for _, d := range deltasB {
		sum += d.Points
	}
	if sum != 0 {
		t.Fatalf("expected zero-sum deltas, got %d", sum)
	}
}

func TestUpdate_UnderdogWinGetsBiggerDelta(t *testing.T) {
	teamA := TeamResult{"a1": 1000}
	teamB := TeamResult{"b1": 1200}

	deltasA, deltasB := Update(teamA, teamB, true)

	if deltasA[0].Points <= 16 {
		t.Fatalf("expected a sizeable upset bonus, got %d", deltasA[0].Points)
	}
	if deltasB[0].Points != -deltasA[0].Points {
		t.Fatalf("expected symmetric loss, got %d vs %d", deltasA[0].Points, deltasB[0].Points)
	}
	if !deltasA[0].Won || deltasB[0].Won {
		t.Fatalf("win flags not set correctly")
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	teamA := TeamResult{"a1": 1000, "a2": 950}
	teamB := TeamResult{"b1": 1100, "b2": 1080}

	d1a, d1b := Update(teamA, teamB, false)
	d2a, d2b := Update(teamA, teamB, false)

	for i := range d1a {
		if d1a[i] != d2a[i] {
			t.Fatalf("non-deterministic output for team A")
		}
	}
	for i := range d1b {
		if d1b[i] != d2b[i] {
			t.Fatalf("non-deterministic output for team B")
		}
	}
}

func TestUpdate_ClampsAtZero(t *testing.T) {
	teamA := TeamResult{"a1": 5}
	teamB := TeamResult{"b1": 2000}

	deltasA, _ := Update(teamA, teamB, false)

	if 5+deltasA[0].Points < 0 {
		t.Fatalf("score should never go negative, got delta %d on base 5", deltasA[0].Points)
	}
}
