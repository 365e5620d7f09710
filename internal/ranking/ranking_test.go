package ranking

import "testing"

func TestBuildSnapshotAggregates(t *testing.T) {
	entries := []Entry{
		{Rank: 1, UserID: "u1", Chips: 5000, IsActive: true},
		{Rank: 2, UserID: "u2", Chips: 3000, IsActive: true},
		{Rank: 3, UserID: "u3", Chips: 2000, IsActive: true},
		{Rank: 4, UserID: "u4", Chips: 0, IsActive: false},
	}
	snap := BuildSnapshot("t1", entries)

	if snap.TotalPlayers != 4 {
		t.Fatalf("total players = %d, want 4", snap.TotalPlayers)
	}
	if snap.ActiveCount != 3 {
		t.Fatalf("active count = %d, want 3", snap.ActiveCount)
	}
	if snap.TotalChips != 10000 {
		t.Fatalf("total chips = %d, want 10000", snap.TotalChips)
	}
	if snap.AverageStack != 10000/3 {
		t.Fatalf("average stack = %d, want %d", snap.AverageStack, 10000/3)
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	snap := BuildSnapshot("t1", nil)
	if snap.TotalPlayers != 0 || snap.ActiveCount != 0 || snap.AverageStack != 0 {
		t.Fatalf("empty snapshot not zeroed: %+v", snap)
	}
}
