package table

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"pokercore/internal/cards"
	"pokercore/internal/chipintegrity"
	"pokercore/internal/rules"
)

// Phase is the table's hand-lifecycle phase.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhasePreflop  Phase = "PREFLOP"
	PhaseFlop     Phase = "FLOP"
	PhaseTurn     Phase = "TURN"
	PhaseRiver    Phase = "RIVER"
	PhaseShowdown Phase = "SHOWDOWN"
)

// PlayerStatus is a seat's participation state within a hand.
type PlayerStatus string

const (
	StatusActive     PlayerStatus = "active"
	StatusFolded     PlayerStatus = "folded"
	StatusAllIn      PlayerStatus = "all_in"
	StatusSittingOut PlayerStatus = "sitting_out"
)

// Player is a seated player, a value owned exclusively by its Table.
type Player struct {
	UserID         string
	DisplayName    string
	Seat           int
	Stack          int
	Bet            int
	TotalBet       int
	Hole           []cards.Card
	Status         PlayerStatus
	IsBot          bool
	CardsRevealed  bool
}

// Config is the table's immutable configuration.
type Config struct {
	SmallBlind int
	BigBlind   int
	MinBuyIn   int
	MaxBuyIn   int
	MaxSeats   int // 6 or 9
}

// WinnerEntry is one seat's share of a completed hand's pot.
type WinnerEntry struct {
	Seat   int
	UserID string
	Amount int
}

// Refund is the uncalled-bet refund attached to a fold-out completion.
type Refund struct {
	Seat   int
	UserID string
	Amount int
}

// HandResult is returned by ProcessAction when a hand completes.
type HandResult struct {
	Winners          []WinnerEntry
	ShowdownCards    map[int][]cards.Card // only populated if >=2 reached showdown
	Pot              int
	CommunityCards   []cards.Card
	ZeroStackPlayers []int
	Refund           *Refund
	HandNumber       int
}

// StartResult is returned by StartNewHand.
type StartResult struct {
	HandNumber          int
	Dealer              int
	AutoActivatedSeats  []int
}

// AvailableActions describes what the current actor may legally do.
type AvailableActions struct {
	Actions  []string
	CallAmount int
	MinRaise int
	MaxRaise int
}

// Table is the in-memory hold'em table. All mutation happens through
// its exported methods; callers (the game loop) are responsible for
// holding Mu for the duration of a mutating call.
type Table struct {
	Mu sync.Mutex

	ID     string
	Config Config
	Seats  []*Player // length MaxSeats, nil where empty

	Phase           Phase
	Pot             int
	Community       []cards.Card
	CurrentTurnSeat int
	DealerSeat      int
	HandNumber      int

	snapshot *rules.Snapshot
	// orderedSeats[i] is the seat number occupying rules-adapter
	// positional index i for the hand currently in progress.
	orderedSeats []int

	LastFullRaise     int
	ActedOnFullRaise  map[int]bool
	UnderRaiseActive  bool

	ActionLog      []string
	StartingStacks map[int]int
	HandStartedAt  time.Time
	TurnStartedAt  time.Time
	SawFlop        bool

	LastActiveAt time.Time

	integrity *chipintegrity.Verifier
}

// New creates an empty table of the given configuration.
func New(id string, cfg Config, integrity *chipintegrity.Verifier) *Table {
	return &Table{
		ID:           id,
		Config:       cfg,
		Seats:        make([]*Player, cfg.MaxSeats),
		Phase:        PhaseWaiting,
		DealerSeat:   -1,
		LastActiveAt: time.Now(),
		integrity:    integrity,
	}
}

// SeatPlayer seats player at seat, defaulting them to sitting_out (the
// "wait for big blind" rule).
func (t *Table) SeatPlayer(seat int, userID, displayName string, stack int, isBot bool) error {
	if seat < 0 || seat >= len(t.Seats) {
		return newActionError(ErrSeatOutOfRange, "seat %d out of range for %d-max table", seat, len(t.Seats))
	}
	if t.Seats[seat] != nil {
		return newActionError(ErrSeatOccupied, "seat %d already occupied", seat)
	}
	for _, p := range t.Seats {
		if p != nil && p.UserID == userID {
			return newActionError(ErrAlreadySeated, "player %s already seated at %d", userID, p.Seat)
		}
	}
	if stack < t.Config.MinBuyIn || (t.Config.MaxBuyIn > 0 && stack > t.Config.MaxBuyIn) {
		return newActionError(ErrBuyinOutOfRange, "buy-in %d outside [%d,%d]", stack, t.Config.MinBuyIn, t.Config.MaxBuyIn)
	}

	t.Seats[seat] = &Player{
		UserID:      userID,
		DisplayName: displayName,
		Seat:        seat,
		Stack:       stack,
		Status:      StatusSittingOut,
		IsBot:       isBot,
	}
	t.LastActiveAt = time.Now()
	log.Printf("[TABLE] %s seated %s at seat %d (stack=%d)", t.ID, userID, seat, stack)
	return nil
}

// RemovePlayer clears a seat. If a hand is in progress the player is
// folded in place first; removal of the seat itself waits for the hand
// to complete.
func (t *Table) RemovePlayer(userID string) error {
	p := t.findPlayer(userID)
	if p == nil {
		return fmt.Errorf("table: player %s not found", userID)
	}
	if t.Phase != PhaseWaiting && p.Status == StatusActive {
		p.Status = StatusFolded
		return nil
	}
	t.Seats[p.Seat] = nil
	return nil
}

// SitIn transitions a seat from sitting_out to active.
func (t *Table) SitIn(seat int) error {
	p := t.Seats[seat]
	if p == nil {
		return fmt.Errorf("table: seat %d empty", seat)
	}
	if p.Stack > 0 {
		p.Status = StatusActive
	}
	return nil
}

// SitOut transitions a seat to sitting_out. A hand already in progress
// is not changed: the seat is not folded in that hand's betting state.
func (t *Table) SitOut(seat int) error {
	p := t.Seats[seat]
	if p == nil {
		return fmt.Errorf("table: seat %d empty", seat)
	}
	if t.Phase != PhaseWaiting && p.Status == StatusActive {
		p.Status = StatusFolded
	}
	p.Status = StatusSittingOut
	return nil
}

func (t *Table) findPlayer(userID string) *Player {
	for _, p := range t.Seats {
		if p != nil && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (t *Table) occupiedSet() map[int]bool {
	occ := make(map[int]bool)
	for i, p := range t.Seats {
		if p != nil {
			occ[i] = true
		}
	}
	return occ
}

func (t *Table) activeCount() int {
	n := 0
	for _, p := range t.Seats {
		if p != nil && p.Status == StatusActive {
			n++
		}
	}
	return n
}

// CanStartHand reports whether a new hand may begin: the table must be
// idle and hold at least two active seats.
func (t *Table) CanStartHand() bool {
	return t.Phase == PhaseWaiting && t.activeCount() >= 2
}

// ActivateBBWaitersForNextHand computes the seat that will post the big
// blind of the next hand (considering every seated player, including
// sitting-out ones) and flips it to active if it is currently waiting.
// Idempotent: calling it twice without an intervening hand is a no-op
// the second time, since the seat is already active.
func (t *Table) ActivateBBWaitersForNextHand() []int {
	occAll := make(map[int]bool)
	for i, p := range t.Seats {
		if p != nil {
			occAll[i] = true
		}
	}
	if len(occAll) < 2 {
		return nil
	}

	nextDealer := t.DealerSeat
	if nextDealer < 0 {
		nextDealer = firstClockwise(t.Config.MaxSeats, occAll)
	} else {
		nextDealer = nextClockwise(nextDealer, t.Config.MaxSeats, occAll)
	}

	var bbSeat int
	if len(occAll) == 2 {
		bbSeat = nextClockwise(nextDealer, t.Config.MaxSeats, occAll)
	} else {
		sbSeat := nextClockwise(nextDealer, t.Config.MaxSeats, occAll)
		bbSeat = nextClockwise(sbSeat, t.Config.MaxSeats, occAll)
	}

	if bbSeat < 0 {
		return nil
	}
	p := t.Seats[bbSeat]
	if p != nil && p.Status == StatusSittingOut && p.Stack > 0 {
		p.Status = StatusActive
		log.Printf("[TABLE] %s auto-activated seat %d (next big blind)", t.ID, bbSeat)
		return []int{bbSeat}
	}
	return nil
}

// StartNewHand begins the next hand.
func (t *Table) StartNewHand() (StartResult, error) {
	if !t.CanStartHand() {
		return StartResult{}, fmt.Errorf("table: %w", &ActionError{Code: ErrNotEnoughPlayers, Message: "need >=2 active players in a waiting table"})
	}

	// Concurrent-start guard: flip the phase before doing anything else
	// so a second concurrent caller immediately sees CanStartHand()==false.
	t.Phase = PhasePreflop

	// Runs before the button moves: the hook derives the upcoming
	// dealer from the previous hand's DealerSeat.
	autoActivated := t.ActivateBBWaitersForNextHand()

	occ := t.occupiedSet()
	if t.DealerSeat < 0 {
		t.DealerSeat = firstClockwise(t.Config.MaxSeats, occ)
	} else {
		t.DealerSeat = nextClockwise(t.DealerSeat, t.Config.MaxSeats, occ)
	}

	ordered := t.clockwiseActiveOrderFromDealer()
	t.orderedSeats = ordered

	stacks := make([]int, len(ordered))
	t.StartingStacks = make(map[int]int, len(ordered))
	for i, seat := range ordered {
		stacks[i] = t.Seats[seat].Stack
		t.StartingStacks[seat] = t.Seats[seat].Stack
	}

	t.HandNumber++
	t.LastActiveAt = time.Now()
	t.ActionLog = nil
	t.HandStartedAt = time.Now()
	t.TurnStartedAt = t.HandStartedAt
	t.SawFlop = false

	if t.integrity != nil {
		if _, err := t.integrity.CaptureHandStart(t.ID, t.HandNumber, stacks, make([]int, len(stacks)), 0); err != nil {
			log.Printf("[TABLE] %s chip integrity capture failed: %v", t.ID, err)
		}
	}

	snap := rules.CreateHand(stacks, t.Config.SmallBlind, t.Config.BigBlind, 0)
	t.snapshot = &snap
	for i, seat := range ordered {
		t.Seats[seat].Hole = snap.HoleCards(i)
		t.Seats[seat].Bet = snap.Bets()[i]
		t.Seats[seat].TotalBet = snap.Bets()[i]
		t.Seats[seat].Status = StatusActive
		if snap.Seats[i].AllIn {
			t.Seats[seat].Status = StatusAllIn
		}
	}

	t.Community = nil
	t.syncPhaseFromRound()
	t.Pot = snap.TotalPot()
	t.LastFullRaise = t.Config.BigBlind
	t.ActedOnFullRaise = make(map[int]bool)
	t.UnderRaiseActive = false
	t.resyncCurrentTurnSeat()

	log.Printf("[TABLE] %s started hand %d, dealer=%d, %d players", t.ID, t.HandNumber, t.DealerSeat, len(ordered))
	return StartResult{HandNumber: t.HandNumber, Dealer: t.DealerSeat, AutoActivatedSeats: autoActivated}, nil
}

// clockwiseActiveOrderFromDealer builds the positional seat order the
// rules adapter expects: heads-up is [BB-seat, SB-seat] with SB=dealer;
// three or more players starts at dealer+1 (SB) and ends at dealer
// (button).
func (t *Table) clockwiseActiveOrderFromDealer() []int {
	occ := make(map[int]bool)
	for i, p := range t.Seats {
		if p != nil && p.Status == StatusActive {
			occ[i] = true
		}
	}

	var order []int
	if len(occ) == 2 {
		other := nextClockwise(t.DealerSeat, t.Config.MaxSeats, occ)
		order = []int{other, t.DealerSeat}
	} else {
		seat := nextClockwise(t.DealerSeat, t.Config.MaxSeats, occ)
		for i := 0; i < len(occ); i++ {
			order = append(order, seat)
			seat = nextClockwise(seat, t.Config.MaxSeats, occ)
		}
	}
	return order
}

func (t *Table) syncPhaseFromRound() {
	switch t.snapshot.Round {
	case rules.RoundPreflop:
		t.Phase = PhasePreflop
	case rules.RoundFlop:
		t.Phase = PhaseFlop
		t.SawFlop = true
	case rules.RoundTurn:
		t.Phase = PhaseTurn
	case rules.RoundRiver:
		t.Phase = PhaseRiver
	case rules.RoundComplete:
		t.Phase = PhaseShowdown
	}
	t.Community = t.snapshot.BoardCards()
}

func (t *Table) resyncCurrentTurnSeat() {
	idx := t.snapshot.ActorIndex()
	if idx == nil {
		t.CurrentTurnSeat = -1
		return
	}
	t.CurrentTurnSeat = t.orderedSeats[*idx]
	t.TurnStartedAt = time.Now()
}

func (t *Table) seatPositional(seat int) (int, bool) {
	for i, s := range t.orderedSeats {
		if s == seat {
			return i, true
		}
	}
	return -1, false
}

// ProcessAction applies a player-initiated action.
func (t *Table) ProcessAction(userID, action string, amount int) (*HandResult, error) {
	if t.Phase == PhaseWaiting || t.snapshot == nil {
		return nil, &ActionError{Code: ErrNoActiveHand, Message: "no hand in progress"}
	}

	p := t.findPlayer(userID)
	if p == nil || p.Seat != t.CurrentTurnSeat {
		return nil, &ActionError{Code: ErrNotYourTurn, Message: "it is not your turn"}
	}
	idx, ok := t.seatPositional(p.Seat)
	if !ok {
		return nil, &ActionError{Code: ErrNotYourTurn, Message: "seat is not part of the current hand"}
	}

	action = strings.ToLower(strings.TrimSpace(action))

	before := *t.snapshot
	var next rules.Snapshot
	var err error

	switch action {
	case "fold":
		if before.CheckingOrCallingAmount() == 0 {
			return nil, &ActionError{Code: ErrCannotFoldFreeCheck, Message: "a free check is available; fold is not allowed"}
		}
		next, err = before.ApplyFold()
	case "check", "call":
		next, err = before.ApplyCheckOrCall()
		if err == nil {
			t.ActedOnFullRaise[p.Seat] = true
		}
	case "bet", "raise":
		if !before.CanBetOrRaiseTo(amount) {
			return nil, &ActionError{Code: ErrInvalidAmount, Message: fmt.Sprintf("amount %d not in [%d,%d]", amount, before.MinCompletionRaise(), before.MaxCompletionRaise())}
		}
		next, err = before.ApplyCompleteBetOrRaiseTo(amount)
		if err == nil {
			t.applyRaiseIncrementBookkeeping(idx, amount, before)
		}
	case "all_in":
		if before.MaxCompletionRaise() > before.CheckingOrCallingAmount()+before.Seats[idx].Bet {
			allInAmount := before.MaxCompletionRaise()
			next, err = before.ApplyCompleteBetOrRaiseTo(allInAmount)
			if err == nil {
				t.applyRaiseIncrementBookkeeping(idx, allInAmount, before)
			}
		} else {
			next, err = before.ApplyCheckOrCall()
			if err == nil {
				t.ActedOnFullRaise[p.Seat] = true
			}
		}
	default:
		return nil, &ActionError{Code: ErrUnknownAction, Message: fmt.Sprintf("unknown action %q", action)}
	}

	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	t.snapshot = &next
	t.ActionLog = append(t.ActionLog, fmt.Sprintf("seat %d %s %d", p.Seat, action, amount))
	t.resyncStacksAndBets()

	phaseBefore := t.Phase
	t.syncPhaseFromRound()
	if t.Phase != phaseBefore && t.Phase != PhaseShowdown {
		t.resetUnderRaiseState()
	}

	if t.snapshot.IsHandComplete() {
		result := t.completeHand()
		return &result, nil
	}

	t.resyncCurrentTurnSeat()
	return nil, nil
}

// applyRaiseIncrementBookkeeping updates last-full-raise / acted-set
// tracking for the full-raise vs under-raise distinction.
func (t *Table) applyRaiseIncrementBookkeeping(actorIdx, amount int, before rules.Snapshot) {
	increment := amount - before.CurrentBet
	if increment >= t.LastFullRaise {
		t.LastFullRaise = increment
		t.ActedOnFullRaise = map[int]bool{t.orderedSeats[actorIdx]: true}
		t.UnderRaiseActive = false
	} else {
		t.UnderRaiseActive = true
		t.ActedOnFullRaise[t.orderedSeats[actorIdx]] = true
	}
}

func (t *Table) resetUnderRaiseState() {
	t.LastFullRaise = t.Config.BigBlind
	t.ActedOnFullRaise = make(map[int]bool)
	t.UnderRaiseActive = false
}

func (t *Table) resyncStacksAndBets() {
	stacks := t.snapshot.Stacks()
	bets := t.snapshot.Bets()
	for i, seat := range t.orderedSeats {
		p := t.Seats[seat]
		p.Stack = stacks[i]
		p.Bet = bets[i]
		p.TotalBet = t.snapshot.Seats[i].TotalBet
		if t.snapshot.Seats[i].Folded {
			p.Status = StatusFolded
		} else if t.snapshot.Seats[i].AllIn {
			p.Status = StatusAllIn
		}
	}
	t.Pot = t.snapshot.TotalPot()
}

// AvailableActions reports what the current actor may legally do,
// including the under-raise restriction on re-raising.
func (t *Table) AvailableActions(userID string) AvailableActions {
	p := t.findPlayer(userID)
	if p == nil || p.Seat != t.CurrentTurnSeat || t.snapshot == nil {
		return AvailableActions{}
	}
	if _, ok := t.seatPositional(p.Seat); !ok {
		return AvailableActions{}
	}

	call := t.snapshot.CheckingOrCallingAmount()
	var actions []string
	if call <= 0 {
		actions = append(actions, "check")
	} else {
		actions = append(actions, "fold", "call")
	}

	canRaise := t.snapshot.CanBetOrRaiseTo(t.snapshot.MinCompletionRaise())
	if t.UnderRaiseActive && t.ActedOnFullRaise[p.Seat] {
		canRaise = false
	}
	if canRaise {
		actions = append(actions, "raise")
	}

	return AvailableActions{
		Actions:    actions,
		CallAmount: call,
		MinRaise:   t.snapshot.MinCompletionRaise(),
		MaxRaise:   t.snapshot.MaxCompletionRaise(),
	}
}
