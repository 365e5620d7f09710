package rules

import "sort"

// Pots layers the hand's total contributions into a main pot plus one
// side pot per distinct all-in level, the same way the source engine's
// pot calculator handles uneven all-ins: a seat can only win chips up to
// the level it personally covered.
func (s Snapshot) Pots() []PotShare {
	contributions := make([]int, len(s.Seats))
	levelSet := make(map[int]bool)
	for i, seat := range s.Seats {
		contributions[i] = seat.TotalBet
		if seat.TotalBet > 0 {
			levelSet[seat.TotalBet] = true
		}
	}

	levels := make([]int, 0, len(levelSet))
	for lvl := range levelSet {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)

	pots := make([]PotShare, 0, len(levels))
	prev := 0
	for _, level := range levels {
		amount := 0
		eligible := []int{}
		for i, contrib := range contributions {
			if contrib > prev {
				capped := contrib
				if capped > level {
					capped = level
				}
				amount += capped - prev
			}
			if contrib >= level && !s.Seats[i].Folded {
				eligible = append(eligible, i)
			}
		}
		if amount > 0 {
			pots = append(pots, PotShare{Amount: amount, Eligible: eligible})
		}
		prev = level
	}
	return pots
}

// TotalPot is the sum of every pot layer, i.e. every chip committed this
// hand including the current street's bets (which TotalBet already
// carries) — callers display this as the running pot size mid-hand.
func (s Snapshot) TotalPot() int {
	total := 0
	for _, seat := range s.Seats {
		total += seat.TotalBet
	}
	return total
}
