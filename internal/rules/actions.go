package rules

import "fmt"

// nextToAct returns the next non-folded, non-all-in seat clockwise from
// fromIdx, or -1 if no seat still owes an action.
func nextToAct(s Snapshot, fromIdx int) int {
	n := len(s.Seats)
	for i := 1; i <= n; i++ {
		idx := (fromIdx + i) % n
		seat := s.Seats[idx]
		if !seat.Folded && !seat.AllIn {
			return idx
		}
	}
	return -1
}

// CanFold reports whether the current actor may fold.
func (s Snapshot) CanFold() bool {
	return s.Actor >= 0 && s.Actor < len(s.Seats) && !s.IsHandComplete()
}

// CanCheckOrCall reports whether the current actor may check or call;
// CheckingOrCallingAmount tells the caller which of the two it is.
func (s Snapshot) CanCheckOrCall() bool {
	return s.Actor >= 0 && s.Actor < len(s.Seats) && !s.IsHandComplete()
}

// CheckingOrCallingAmount is the chip amount a check-or-call would cost
// the current actor; zero means the action is a check.
func (s Snapshot) CheckingOrCallingAmount() int {
	if s.Actor < 0 || s.Actor >= len(s.Seats) {
		return 0
	}
	owed := s.CurrentBet - s.Seats[s.Actor].Bet
	if owed < 0 {
		return 0
	}
	if owed > s.Seats[s.Actor].Stack {
		return s.Seats[s.Actor].Stack
	}
	return owed
}

// MinCompletionRaise is the minimum legal "raise to" total for the
// current actor. When the actor cannot cover a full raise, the only
// legal raise is an all-in for less (an under-raise that does not
// reopen action for players who already acted at the current full-raise
// level — the table engine tracks that restriction separately).
func (s Snapshot) MinCompletionRaise() int {
	if s.Actor < 0 || s.Actor >= len(s.Seats) {
		return 0
	}
	seat := s.Seats[s.Actor]
	min := s.CurrentBet + s.MinRaiseIncrement
	allIn := seat.Bet + seat.Stack
	if min > allIn {
		return allIn
	}
	return min
}

// MaxCompletionRaise is the maximum legal "raise to" total (table stakes:
// the actor's entire remaining stack).
func (s Snapshot) MaxCompletionRaise() int {
	if s.Actor < 0 || s.Actor >= len(s.Seats) {
		return 0
	}
	seat := s.Seats[s.Actor]
	return seat.Bet + seat.Stack
}

// CanBetOrRaiseTo reports whether raising to amount is legal for the
// current actor.
func (s Snapshot) CanBetOrRaiseTo(amount int) bool {
	if s.Actor < 0 || s.Actor >= len(s.Seats) || s.IsHandComplete() {
		return false
	}
	if amount < s.MinCompletionRaise() || amount > s.MaxCompletionRaise() {
		return false
	}
	return true
}

// ApplyFold folds the current actor and advances state.
func (s Snapshot) ApplyFold() (Snapshot, error) {
	ns := s.clone()
	if !ns.CanFold() {
		return s, fmt.Errorf("rules: no actor to fold")
	}
	ns.Seats[ns.Actor].Folded = true
	ns.Seats[ns.Actor].HasActed = true
	return ns.advance(), nil
}

// ApplyCheckOrCall checks or calls for the current actor, whichever is
// legal given CheckingOrCallingAmount.
func (s Snapshot) ApplyCheckOrCall() (Snapshot, error) {
	ns := s.clone()
	if !ns.CanCheckOrCall() {
		return s, fmt.Errorf("rules: no actor to act")
	}
	amount := ns.CheckingOrCallingAmount()
	ns.postChips(ns.Actor, amount, true)
	ns.Seats[ns.Actor].HasActed = true
	return ns.advance(), nil
}

// ApplyCompleteBetOrRaiseTo raises the current actor's total street bet
// to amount. Callers must have already validated legality via
// CanBetOrRaiseTo; this still re-derives the under-raise distinction so
// HasActed resets only apply on full raises.
func (s Snapshot) ApplyCompleteBetOrRaiseTo(amount int) (Snapshot, error) {
	ns := s.clone()
	if !ns.CanBetOrRaiseTo(amount) {
		return s, fmt.Errorf("rules: illegal raise to %d", amount)
	}

	actor := ns.Actor
	seat := &ns.Seats[actor]
	delta := amount - seat.Bet
	if delta >= seat.Stack {
		delta = seat.Stack
		seat.AllIn = true
	}
	seat.Stack -= delta
	seat.Bet += delta
	seat.TotalBet += delta
	seat.HasActed = true

	if seat.Bet > ns.CurrentBet {
		increment := seat.Bet - ns.CurrentBet
		fullRaise := increment >= ns.MinRaiseIncrement
		ns.CurrentBet = seat.Bet
		if fullRaise {
			ns.MinRaiseIncrement = increment
			for i := range ns.Seats {
				if i != actor && !ns.Seats[i].Folded && !ns.Seats[i].AllIn {
					ns.Seats[i].HasActed = false
				}
			}
		}
		// Under-raises (all-in for less than a full increment) do not
		// reopen action: every other seat's HasActed is left untouched.
	}

	return ns.advance(), nil
}

// advance moves the actor pointer forward, or progresses the hand to the
// next street / showdown once the current betting round is settled.
func (s Snapshot) advance() Snapshot {
	ns := s

	if ns.activeCount() <= 1 {
		return ns.completeHand()
	}

	if !ns.isRoundComplete() {
		ns.Actor = nextToAct(ns, ns.Actor)
		return ns
	}

	contestedCount := 0
	for _, seat := range ns.Seats {
		if !seat.Folded && !seat.AllIn {
			contestedCount++
		}
	}

	if ns.Round == RoundRiver || contestedCount <= 1 {
		ns = ns.dealRemainingBoard()
		return ns.completeHand()
	}

	return ns.dealNextStreet()
}

// isRoundComplete reports whether every non-folded, non-all-in seat has
// acted since the last full raise and matched the current bet.
func (s Snapshot) isRoundComplete() bool {
	for _, seat := range s.Seats {
		if seat.Folded || seat.AllIn {
			continue
		}
		if !seat.HasActed || seat.Bet != s.CurrentBet {
			return false
		}
	}
	return true
}
