package table

import (
	"log"

	"pokercore/internal/cards"
)

// completeHand finishes the hand: winners are derived by
// comparing final stacks to the hand's starting stacks (the rules
// adapter has already pushed chips to the winning seat(s) by the time
// IsHandComplete() is true), showdown cards are only revealed when at
// least two players reached showdown, and a single-winner fold-out
// carries an uncalled-bet refund computed from TotalBet accumulated
// across streets.
func (t *Table) completeHand() HandResult {
	t.resyncStacksAndBets()
	t.Phase = PhaseShowdown

	var winners []WinnerEntry
	totalGain := 0
	for _, seat := range t.orderedSeats {
		p := t.Seats[seat]
		gain := p.Stack - t.StartingStacks[seat]
		if gain > 0 {
			winners = append(winners, WinnerEntry{Seat: seat, UserID: p.UserID, Amount: gain})
			totalGain += gain
		}
	}
	pot := totalGain
	if pot == 0 {
		// Edge case: every seat's stack decreased or held even (should not
		// normally happen) — fall back to the hand's recorded pot.
		pot = t.Pot
	}

	reachedShowdown := 0
	for _, seat := range t.orderedSeats {
		p := t.Seats[seat]
		if p.Status == StatusActive || p.Status == StatusAllIn {
			reachedShowdown++
		}
	}

	var showdownCards map[int][]cards.Card
	if reachedShowdown >= 2 {
		showdownCards = make(map[int][]cards.Card, len(t.orderedSeats))
		for _, seat := range t.orderedSeats {
			p := t.Seats[seat]
			if p.Status == StatusActive || p.Status == StatusAllIn {
				showdownCards[seat] = p.Hole
				p.CardsRevealed = true
			}
		}
	}

	var refund *Refund
	if len(winners) == 1 && reachedShowdown < 2 {
		winnerSeat := winners[0].Seat
		maxOther := 0
		for _, seat := range t.orderedSeats {
			if seat == winnerSeat {
				continue
			}
			if t.Seats[seat].TotalBet > maxOther {
				maxOther = t.Seats[seat].TotalBet
			}
		}
		amount := t.Seats[winnerSeat].TotalBet - maxOther
		if amount > 0 {
			refund = &Refund{Seat: winnerSeat, UserID: t.Seats[winnerSeat].UserID, Amount: amount}
		}
	}

	if t.integrity != nil {
		endingStacks := make([]int, len(t.orderedSeats))
		for i, seat := range t.orderedSeats {
			endingStacks[i] = t.Seats[seat].Stack
		}
		if err := t.integrity.ValidateHandCompletion(t.ID, endingStacks, 0); err != nil {
			log.Printf("[TABLE] %s chip integrity alert on hand %d: %v", t.ID, t.HandNumber, err)
		}
	}

	result := HandResult{
		Winners:          winners,
		ShowdownCards:    showdownCards,
		Pot:              pot,
		CommunityCards:   t.Community,
		Refund:           refund,
		HandNumber:       t.HandNumber,
	}

	var zeroStack []int
	for _, seat := range t.orderedSeats {
		p := t.Seats[seat]
		p.Bet = 0
		p.TotalBet = 0
		p.Hole = nil
		if p.Status != StatusSittingOut {
			p.Status = StatusActive
		}
		if p.Stack == 0 {
			p.Status = StatusSittingOut
			zeroStack = append(zeroStack, seat)
		}
	}
	result.ZeroStackPlayers = zeroStack

	t.Phase = PhaseWaiting
	t.snapshot = nil
	t.orderedSeats = nil
	t.Community = nil
	t.Pot = 0
	t.CurrentTurnSeat = -1
	// ActionLog and StartingStacks survive until the next hand starts;
	// the persistence hook reads them after completion.
	t.resetUnderRaiseState()

	log.Printf("[TABLE] %s completed hand %d: %d winner(s), pot=%d", t.ID, result.HandNumber, len(winners), result.Pot)
	return result
}
