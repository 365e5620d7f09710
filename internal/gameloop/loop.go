// Package gameloop implements the per-table scheduling model of
// cooperative turns, plus the table registry and its memory
// reclamation cleanup loop.
package gameloop

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"pokercore/internal/config"
	"pokercore/internal/events"
	"pokercore/internal/table"
)

// Loop drives a table through hand-start and bot-turn scheduling. It is
// deliberately table-agnostic about who is deciding the bot's action or
// how the result reaches a socket: those are delegated to BotDecider and
// Broadcaster, so this package never imports the orchestrator or the
// gateway.
type Loop struct {
	Manager  *Manager
	Deciders BotDecider
	Out      Broadcaster
	Cfg      config.Config

	// OnHandComplete, when set, observes every finished hand before the
	// next one is scheduled. The tournament bridge hangs off this to
	// feed results into the tournament engine; returning true claims
	// the table (its engine reschedules hands, not this loop).
	OnHandComplete func(tableID string, result table.HandResult) bool

	processingMu sync.Mutex
	processing   map[string]bool
}

// NewLoop wires a Loop against its table registry, bot decision source
// and broadcast sink.
func NewLoop(m *Manager, deciders BotDecider, out Broadcaster, cfg config.Config) *Loop {
	if deciders == nil {
		deciders = nopDecider{}
	}
	if out == nil {
		out = nopBroadcaster{}
	}
	return &Loop{
		Manager:    m,
		Deciders:   deciders,
		Out:        out,
		Cfg:        cfg,
		processing: make(map[string]bool),
	}
}

func (l *Loop) markProcessing(tableID string) bool {
	l.processingMu.Lock()
	defer l.processingMu.Unlock()
	if l.processing[tableID] {
		return false
	}
	l.processing[tableID] = true
	return true
}

func (l *Loop) clearProcessing(tableID string) {
	l.processingMu.Lock()
	defer l.processingMu.Unlock()
	delete(l.processing, tableID)
}

// TryStartGame attempts to begin a new hand on tableID.
// It is a no-op (returns false) if the table cannot start a hand or is
// already mid-processing. On success it broadcasts HAND_STARTED and a
// personalized TABLE_SNAPSHOT to every seat, then hands off to
// ProcessBotTurns without holding the table lock.
func (l *Loop) TryStartGame(tableID string) bool {
	t, ok := l.Manager.GetTable(tableID)
	if !ok {
		return false
	}
	if !l.markProcessing(tableID) {
		return false
	}

	t.Mu.Lock()
	if !t.CanStartHand() {
		t.Mu.Unlock()
		l.clearProcessing(tableID)
		return false
	}
	result, err := t.StartNewHand()
	if err != nil {
		t.Mu.Unlock()
		l.clearProcessing(tableID)
		return false
	}
	l.broadcastHandStarted(t, result)
	l.broadcastSnapshots(t, events.TypeTableSnapshot)
	t.Mu.Unlock()

	time.Sleep(l.Cfg.PhaseTransitionDelay)

	go func() {
		defer l.clearProcessing(tableID)
		l.ProcessBotTurns(tableID)
	}()
	return true
}

func (l *Loop) broadcastHandStarted(t *table.Table, result table.StartResult) {
	l.Out.BroadcastToChannel(tableChannel(t.ID), events.New(events.TypeHandStarted, map[string]any{
		"table_id":    t.ID,
		"hand_number": result.HandNumber,
		"dealer_seat": result.Dealer,
	}))
}

func (l *Loop) broadcastSnapshots(t *table.Table, typ events.Type) {
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		l.Out.SendToUser(p.UserID, events.New(typ, buildSnapshot(t, p.UserID)))
	}
}

// ProcessBotTurns drives every consecutive bot turn on tableID until a
// human must act, the hand completes, or the iteration cap is hit.
// It never holds the table lock across a "thinking" sleep:
// each iteration re-acquires the lock only to read the actor and apply
// the resulting action.
func (l *Loop) ProcessBotTurns(tableID string) {
	for i := 0; i < l.Cfg.BotTurnIterationCap; i++ {
		t, ok := l.Manager.GetTable(tableID)
		if !ok {
			return
		}

		t.Mu.Lock()
		if t.Phase == table.PhaseWaiting {
			t.Mu.Unlock()
			return
		}
		actor, userID, ctx, found := l.currentActorContext(t)
		t.Mu.Unlock()

		if !found {
			if l.retryForActor(tableID) {
				continue
			}
			return
		}

		if !l.Deciders.IsBot(userID) {
			l.broadcastTurnPrompt(t, actor, userID)
			return
		}

		l.thinkingDelay()

		decision := l.Deciders.Decide(userID, ctx)

		t.Mu.Lock()
		phaseBefore := t.Phase
		handResult, err := t.ProcessAction(userID, decision.Action, decision.Amount)
		if err != nil {
			// A stale decision (table moved on concurrently): fold the
			// actor rather than wedge the loop.
			handResult, err = t.ProcessAction(userID, "fold", 0)
			if err != nil {
				t.Mu.Unlock()
				return
			}
		}
		phaseChanged := t.Phase != phaseBefore
		if handResult == nil {
			l.broadcastSnapshots(t, events.TypeTableStateUpdate)
			if phaseChanged && len(t.Community) > 0 {
				l.Out.BroadcastToChannel(tableChannel(t.ID), events.New(events.TypeCommunityCards, map[string]any{
					"table_id": t.ID,
					"phase":    string(t.Phase),
					"cards":    t.Community,
				}))
			}
		}
		t.Mu.Unlock()

		if handResult != nil {
			l.finishHand(t, *handResult)
			return
		}
	}
}

// currentActorContext reads the table's current actor under the
// caller-held lock and builds its GameContext.
func (l *Loop) currentActorContext(t *table.Table) (seat int, userID string, ctx GameContext, found bool) {
	seat = t.CurrentTurnSeat
	if seat < 0 || seat >= len(t.Seats) || t.Seats[seat] == nil {
		return 0, "", GameContext{}, false
	}
	p := t.Seats[seat]
	avail := t.AvailableActions(p.UserID)
	if len(avail.Actions) == 0 {
		return 0, "", GameContext{}, false
	}

	active := 0
	for _, s := range t.Seats {
		if s != nil && s.Status == table.StatusActive {
			active++
		}
	}

	ctx = GameContext{
		Actions:        avail.Actions,
		CallAmount:     avail.CallAmount,
		MinRaise:       avail.MinRaise,
		MaxRaise:       avail.MaxRaise,
		Stack:          p.Stack,
		CurrentBet:     p.Bet,
		Position:       p.Seat,
		HoleCards:      p.Hole,
		CommunityCards: t.Community,
		Pot:            t.Pot,
		Phase:          string(t.Phase),
		BigBlind:       t.Config.BigBlind,
		NumSeats:       len(t.Seats),
		NumActive:      active,
	}
	return seat, p.UserID, ctx, true
}

// retryForActor backs off and retries a transient missing-actor read
// (e.g. a seat mid-removal), up to BotTurnRetryAttempts times.
func (l *Loop) retryForActor(tableID string) bool {
	for i := 0; i < l.Cfg.BotTurnRetryAttempts; i++ {
		time.Sleep(l.Cfg.BotTurnRetryBackoff)
		t, ok := l.Manager.GetTable(tableID)
		if !ok {
			return false
		}
		t.Mu.Lock()
		_, _, _, found := l.currentActorContext(t)
		t.Mu.Unlock()
		if found {
			return true
		}
	}
	return false
}

// thinkingDelay mimics a bot "considering" its action: a triangular
// draw between 1 and 3 seconds peaking at 2, with a 20% chance of an
// extra 1-2 second pause.
func (l *Loop) thinkingDelay() {
	base := triangular(1.0, 2.0, 3.0)
	time.Sleep(time.Duration(base * float64(time.Second)))
	if rand.Intn(100) < 20 {
		extra := 1.0 + rand.Float64()
		time.Sleep(time.Duration(extra * float64(time.Second)))
	}
}

// triangular samples a triangular distribution over [min, max] with the
// given mode.
func triangular(min, mode, max float64) float64 {
	u := rand.Float64()
	c := (mode - min) / (max - min)
	if u < c {
		return min + math.Sqrt(u*(max-min)*(mode-min))
	}
	return max - math.Sqrt((1-u)*(max-min)*(max-mode))
}

func (l *Loop) broadcastTurnPrompt(t *table.Table, seat int, userID string) {
	l.Out.BroadcastToChannel(tableChannel(t.ID), events.New(events.TypeTurnChanged, map[string]any{
		"table_id": t.ID,
		"seat":     seat,
	}))
	avail := t.AvailableActions(userID)
	l.Out.SendToUser(userID, events.New(events.TypeTurnPrompt, map[string]any{
		"table_id":    t.ID,
		"actions":     avail.Actions,
		"call_amount": avail.CallAmount,
		"min_raise":   avail.MinRaise,
		"max_raise":   avail.MaxRaise,
	}))
}

// finishHand broadcasts the completed hand's result, notifies bots of
// their new stacks, and schedules the next hand after the configured
// display pause.
func (l *Loop) finishHand(t *table.Table, result table.HandResult) {
	t.Mu.Lock()
	l.broadcastSnapshots(t, events.TypeTableStateUpdate)
	seats := make([]*table.Player, len(t.Seats))
	copy(seats, t.Seats)
	t.Mu.Unlock()

	l.Out.BroadcastToChannel(tableChannel(t.ID), events.New(events.TypeHandResult, map[string]any{
		"table_id":        t.ID,
		"hand_number":     result.HandNumber,
		"winners":         result.Winners,
		"pot":             result.Pot,
		"community_cards": result.CommunityCards,
		"showdown_cards":  result.ShowdownCards,
		"refund":          result.Refund,
	}))

	for _, seat := range result.ZeroStackPlayers {
		if seat < 0 || seat >= len(seats) || seats[seat] == nil {
			continue
		}
		l.Out.SendToUser(seats[seat].UserID, events.New(events.TypeStackZero, map[string]any{
			"table_id": t.ID,
			"seat":     seat,
		}))
	}

	wonBySeat := make(map[int]int)
	for _, w := range result.Winners {
		wonBySeat[w.Seat] += w.Amount
	}
	for _, p := range seats {
		if p == nil || l.Deciders == nil || !l.Deciders.IsBot(p.UserID) {
			continue
		}
		l.Deciders.NotifyHandComplete(p.UserID, t.ID, p.Stack, wonBySeat[p.Seat])
	}

	if l.OnHandComplete != nil && l.OnHandComplete(t.ID, result) {
		return
	}

	// Scheduled rather than slept: this frame is still inside the
	// table's processing window, and TryStartGame must observe it
	// cleared.
	time.AfterFunc(l.Cfg.HandResultDisplay+2*time.Second, func() {
		l.TryStartGame(t.ID)
	})
}
