package balancer

import "testing"

func tableOf(id string, maxSeats int, seats ...int) TableInfo {
	t := TableInfo{TableID: id, MaxSeats: maxSeats}
	for i, s := range seats {
		t.Players = append(t.Players, SeatedPlayer{UserID: id + "-p" + string(rune('a'+i)), Seat: s})
	}
	return t
}

func applyPlan(tables []TableInfo, plan Plan) map[string]int {
	counts := make(map[string]int)
	broken := make(map[string]bool)
	for _, id := range plan.BrokenTables {
		broken[id] = true
	}
	for _, t := range tables {
		counts[t.TableID] = len(t.Players)
	}
	for _, m := range plan.Moves {
		counts[m.FromTable]--
		counts[m.ToTable]++
	}
	for id := range broken {
		delete(counts, id)
	}
	return counts
}

func TestNoPlanWhenBalanced(t *testing.T) {
	tables := []TableInfo{
		tableOf("t1", 9, 0, 1, 2, 3, 4),
		tableOf("t2", 9, 0, 1, 2, 3),
	}
	plan := New(3, 9).ComputePlan(tables)
	if plan.TotalMoves() != 0 || plan.Priority != PriorityNone {
		t.Fatalf("expected empty plan, got %d moves priority %s", plan.TotalMoves(), plan.Priority)
	}
}

func TestEvenOutSpreadWithinOne(t *testing.T) {
	tables := []TableInfo{
		tableOf("t1", 9, 0, 1, 2, 3, 4, 5, 6, 7),
		tableOf("t2", 9, 0, 1, 2, 3),
		tableOf("t3", 9, 0, 1, 2, 3, 4, 5),
	}
	plan := New(3, 9).ComputePlan(tables)
	if plan.TotalMoves() == 0 {
		t.Fatal("expected moves for 8/4/6 split")
	}
	counts := applyPlan(tables, plan)
	minN, maxN := 100, 0
	for _, n := range counts {
		if n < minN {
			minN = n
		}
		if n > maxN {
			maxN = n
		}
	}
	if maxN-minN > 1 {
		t.Fatalf("post-plan spread %d > 1 (counts %v)", maxN-minN, counts)
	}
}

func TestBreakShortTable(t *testing.T) {
	tables := []TableInfo{
		tableOf("t1", 9, 0, 1),
		tableOf("t2", 9, 0, 1, 2, 3, 4, 5),
		tableOf("t3", 9, 0, 1, 2, 3, 4, 5, 6),
	}
	plan := New(3, 9).ComputePlan(tables)
	if len(plan.BrokenTables) != 1 || plan.BrokenTables[0] != "t1" {
		t.Fatalf("expected t1 broken, got %v", plan.BrokenTables)
	}
	moves := 0
	for _, m := range plan.Moves {
		if m.FromTable != "t1" {
			t.Fatalf("unexpected move source %s", m.FromTable)
		}
		moves++
	}
	if moves != 2 {
		t.Fatalf("expected 2 moves off broken table, got %d", moves)
	}
}

func TestFinalTableAssembly(t *testing.T) {
	// Seed case: total active = 9 across {4, 3, 2}; the 4-seat table
	// becomes the final table and the other two break.
	tables := []TableInfo{
		tableOf("t1", 9, 0, 1, 2, 3),
		tableOf("t2", 9, 0, 1, 2),
		tableOf("t3", 9, 0, 1),
	}
	plan := New(3, 9).ComputePlan(tables)
	if plan.Priority != PriorityCritical {
		t.Fatalf("expected CRITICAL priority, got %s", plan.Priority)
	}
	if plan.FinalTable != "t1" {
		t.Fatalf("expected t1 as final table, got %s", plan.FinalTable)
	}
	if plan.TotalMoves() != 5 {
		t.Fatalf("expected 5 moves into the final table, got %d", plan.TotalMoves())
	}
	if len(plan.BrokenTables) != 2 {
		t.Fatalf("expected 2 broken tables, got %v", plan.BrokenTables)
	}
	seats := make(map[int]bool)
	for _, m := range plan.Moves {
		if m.ToTable != "t1" {
			t.Fatalf("move targets %s, want t1", m.ToTable)
		}
		if seats[m.ToSeat] {
			t.Fatalf("seat %d assigned twice", m.ToSeat)
		}
		seats[m.ToSeat] = true
	}
}

func TestMovesFlaggedWhenHandInProgress(t *testing.T) {
	src := tableOf("t1", 9, 0, 1, 2, 3, 4, 5, 6)
	src.HandInProgress = true
	tables := []TableInfo{src, tableOf("t2", 9, 0, 1, 2)}
	plan := New(3, 9).ComputePlan(tables)
	if plan.TotalMoves() == 0 {
		t.Fatal("expected moves for 7/3 split")
	}
	for _, m := range plan.Moves {
		if !m.ExecuteAfterHand {
			t.Fatal("moves out of an in-hand table must wait for hand completion")
		}
	}
}

func TestMoverIsPastButton(t *testing.T) {
	src := tableOf("t1", 9, 1, 3, 5, 7, 8)
	src.ButtonSeat = 3
	tables := []TableInfo{src, tableOf("t2", 9, 0, 1, 2)}
	plan := New(3, 6).ComputePlan(tables)
	if plan.TotalMoves() == 0 {
		t.Fatal("expected at least one move")
	}
	if got := plan.Moves[0].FromSeat; got != 5 {
		t.Fatalf("expected seat 5 (just past button 3) to move first, got %d", got)
	}
}
