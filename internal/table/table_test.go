package table

import "testing"

func newHeadsUpTable(t *testing.T) *Table {
	t.Helper()
	tbl := New("tbl-1", Config{SmallBlind: 10, BigBlind: 20, MinBuyIn: 100, MaxBuyIn: 5000, MaxSeats: 6}, nil)
	if err := tbl.SeatPlayer(0, "alice", "Alice", 1000, false); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SeatPlayer(1, "bob", "Bob", 1000, false); err != nil {
		t.Fatal(err)
	}
	tbl.SitIn(0)
	tbl.SitIn(1)
	return tbl
}

func TestHeadsUpBlindRotation(t *testing.T) {
	tbl := newHeadsUpTable(t)
	res, err := tbl.StartNewHand()
	if err != nil {
		t.Fatalf("StartNewHand: %v", err)
	}
	if res.Dealer != 0 && res.Dealer != 1 {
		t.Fatalf("unexpected dealer %d", res.Dealer)
	}

	dealer := tbl.Seats[res.Dealer]
	other := tbl.Seats[1-res.Dealer]
	if dealer.Bet != 10 {
		t.Errorf("dealer (SB, heads-up) bet = %d, want 10", dealer.Bet)
	}
	if other.Bet != 20 {
		t.Errorf("other (BB, heads-up) bet = %d, want 20", other.Bet)
	}
	if tbl.CurrentTurnSeat != res.Dealer {
		t.Errorf("heads-up action should start with SB/dealer seat %d, got %d", res.Dealer, tbl.CurrentTurnSeat)
	}
}

func TestUnderRaiseBlocksCallersRaise(t *testing.T) {
	tbl := New("tbl-2", Config{SmallBlind: 50, BigBlind: 100, MinBuyIn: 100, MaxBuyIn: 10000, MaxSeats: 9}, nil)
	stacks := []int{2000, 2000, 450, 2000}
	for i, s := range stacks {
		if err := tbl.SeatPlayer(i, seatName(i), seatName(i), s, false); err != nil {
			t.Fatal(err)
		}
		tbl.SitIn(i)
	}
	if _, err := tbl.StartNewHand(); err != nil {
		t.Fatalf("StartNewHand: %v", err)
	}

	// UTG (first to act preflop in a 4-handed game) raises to 300: a full
	// raise (increment 200 >= BB 100).
	utg := tbl.Seats[tbl.CurrentTurnSeat].UserID
	if _, err := tbl.ProcessAction(utg, "raise", 300); err != nil {
		t.Fatalf("UTG raise: %v", err)
	}
	if tbl.UnderRaiseActive {
		t.Fatalf("full raise should not activate under-raise state")
	}

	// Next two players call.
	for i := 0; i < 2; i++ {
		actor := tbl.Seats[tbl.CurrentTurnSeat].UserID
		if _, err := tbl.ProcessAction(actor, "call", 0); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	// Short stack (450) is now the actor and goes all-in for less than a
	// full raise (increment 150 < 200).
	shortStack := tbl.Seats[tbl.CurrentTurnSeat].UserID
	if _, err := tbl.ProcessAction(shortStack, "all_in", 0); err != nil {
		t.Fatalf("short-stack all-in: %v", err)
	}
	if !tbl.UnderRaiseActive {
		t.Fatalf("all-in for less than a full raise should activate under-raise state")
	}

	for _, seat := range tbl.orderedSeats {
		p := tbl.Seats[seat]
		if p.Status != StatusActive {
			continue
		}
		avail := tbl.AvailableActions(p.UserID)
		if seat == tbl.CurrentTurnSeat && tbl.ActedOnFullRaise[seat] {
			for _, a := range avail.Actions {
				if a == "raise" {
					t.Errorf("seat %d already acted at the full-raise level; raise should be suppressed", seat)
				}
			}
		}
	}
}

func TestChipConservationAcrossFoldOut(t *testing.T) {
	tbl := New("tbl-3", Config{SmallBlind: 10, BigBlind: 20, MinBuyIn: 100, MaxBuyIn: 10000, MaxSeats: 9}, nil)
	for i := 0; i < 3; i++ {
		if err := tbl.SeatPlayer(i, seatName(i), seatName(i), 1000, false); err != nil {
			t.Fatal(err)
		}
		tbl.SitIn(i)
	}
	if _, err := tbl.StartNewHand(); err != nil {
		t.Fatalf("StartNewHand: %v", err)
	}

	utg := tbl.Seats[tbl.CurrentTurnSeat].UserID
	result, err := tbl.ProcessAction(utg, "raise", 60)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if result != nil {
		t.Fatalf("hand should not be complete yet")
	}

	// Remaining two players fold.
	for i := 0; i < 2; i++ {
		actor := tbl.Seats[tbl.CurrentTurnSeat].UserID
		result, err = tbl.ProcessAction(actor, "fold", 0)
		if err != nil {
			t.Fatalf("fold %d: %v", i, err)
		}
	}
	if result == nil {
		t.Fatalf("hand should be complete after both opponents fold")
	}

	total := 0
	for _, p := range tbl.Seats {
		if p != nil {
			total += p.Stack
		}
	}
	if total != 3000 {
		t.Errorf("total chips after fold-out = %d, want 3000", total)
	}
	if len(result.Winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(result.Winners))
	}
}

func seatName(i int) string {
	return string(rune('a' + i))
}
