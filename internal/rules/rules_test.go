package rules

import "testing"

func TestCreateHandHeadsUpPostsBlinds(t *testing.T) {
	s := CreateHand([]int{1000, 1000}, 5, 10, 0)

	if s.Seats[0].Bet != 10 {
		t.Errorf("expected seat 0 (BB) bet 10, got %d", s.Seats[0].Bet)
	}
	if s.Seats[1].Bet != 5 {
		t.Errorf("expected seat 1 (SB/dealer) bet 5, got %d", s.Seats[1].Bet)
	}
	if s.Actor != 1 {
		t.Errorf("expected heads-up preflop actor to be the SB (seat 1), got %d", s.Actor)
	}
	if len(s.HoleCards(0)) != 2 || len(s.HoleCards(1)) != 2 {
		t.Fatal("expected both seats dealt two hole cards")
	}
}

func TestCreateHandThreeHandedPostsBlinds(t *testing.T) {
	s := CreateHand([]int{1000, 1000, 1000}, 5, 10, 0)

	if s.Seats[0].Bet != 5 {
		t.Errorf("expected seat 0 (SB) bet 5, got %d", s.Seats[0].Bet)
	}
	if s.Seats[1].Bet != 10 {
		t.Errorf("expected seat 1 (BB) bet 10, got %d", s.Seats[1].Bet)
	}
	if s.Actor != 2 {
		t.Errorf("expected preflop actor to be seat 2 (button/UTG), got %d", s.Actor)
	}
}

func TestChipConservationAcrossActions(t *testing.T) {
	s := CreateHand([]int{1000, 1000, 1000}, 5, 10, 0)
	starting := 3000

	total := func(s Snapshot) int {
		sum := 0
		for _, seat := range s.Seats {
			sum += seat.Stack + seat.TotalBet
		}
		return sum
	}

	if total(s) != starting {
		t.Fatalf("chip total after deal: got %d want %d", total(s), starting)
	}

	s, err := s.ApplyCheckOrCall() // seat 2 calls the big blind
	if err != nil {
		t.Fatal(err)
	}
	if total(s) != starting {
		t.Fatalf("chip total after call: got %d want %d", total(s), starting)
	}

	s, err = s.ApplyCompleteBetOrRaiseTo(30) // seat 0 (SB) raises
	if err != nil {
		t.Fatal(err)
	}
	if total(s) != starting {
		t.Fatalf("chip total after raise: got %d want %d", total(s), starting)
	}
}

func TestUnderRaiseDoesNotReopenAction(t *testing.T) {
	// Four-handed: seat 2 (first to act) calls the big blind of 10, then
	// seat 3 (button, 15 chips) goes all-in to 15. That increment of 5 is
	// below the full raise of 10, so seat 2's call still stands.
	s := CreateHand([]int{1000, 1000, 1000, 15}, 5, 10, 0)
	s, err := s.ApplyCheckOrCall()
	if err != nil {
		t.Fatal(err)
	}
	if !s.CanBetOrRaiseTo(s.MaxCompletionRaise()) {
		t.Fatal("expected all-in raise to be legal")
	}

	next, err := s.ApplyCompleteBetOrRaiseTo(s.MaxCompletionRaise())
	if err != nil {
		t.Fatal(err)
	}
	if !next.Seats[3].AllIn {
		t.Fatal("expected seat 3 to be all-in")
	}
	if !next.Seats[2].HasActed {
		t.Fatal("under-raise reopened action for seat 2")
	}
}

func TestFoldToHeadsUpEndsHandImmediately(t *testing.T) {
	s := CreateHand([]int{1000, 1000}, 5, 10, 0)
	s, err := s.ApplyFold() // seat 1 (SB, first to act) folds
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsHandComplete() {
		t.Fatal("expected hand to complete when only one player remains")
	}
	if s.Seats[0].Stack != 1005 {
		t.Errorf("expected winner to be awarded the pot, got stack %d", s.Seats[0].Stack)
	}
}

func TestPotsSplitAllInSidePot(t *testing.T) {
	s := Snapshot{
		Seats: []Seat{
			{Stack: 0, TotalBet: 50},
			{Stack: 0, TotalBet: 100},
			{Stack: 0, TotalBet: 100},
		},
	}
	pots := s.Pots()
	if len(pots) != 2 {
		t.Fatalf("expected main pot + one side pot, got %d", len(pots))
	}
	if pots[0].Amount != 150 || len(pots[0].Eligible) != 3 {
		t.Errorf("unexpected main pot: %+v", pots[0])
	}
	if pots[1].Amount != 100 || len(pots[1].Eligible) != 2 {
		t.Errorf("unexpected side pot: %+v", pots[1])
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := CreateHand([]int{1000, 1000}, 5, 10, 0)
	data, err := s.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.CurrentBet != s.CurrentBet || back.Actor != s.Actor {
		t.Fatal("round trip did not preserve snapshot state")
	}
}
