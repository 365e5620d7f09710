package gameloop

import (
	"context"
	"log"
	"time"

	"pokercore/internal/events"
	"pokercore/internal/table"
)

// RunTurnTimeoutLoop watches every table for a human actor who has
// outstayed the turn clock and acts for them: a free check when one is
// available, otherwise a fold, broadcast as TIMEOUT_FOLD. Bot turns are
// paced by the loop itself and never time out here.
func (l *Loop) RunTurnTimeoutLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range l.Manager.TableIDs() {
				l.checkTurnTimeout(id)
			}
		}
	}
}

func (l *Loop) checkTurnTimeout(tableID string) {
	t, ok := l.Manager.GetTable(tableID)
	if !ok {
		return
	}

	t.Mu.Lock()
	if t.Phase == table.PhaseWaiting || t.CurrentTurnSeat < 0 || t.CurrentTurnSeat >= len(t.Seats) {
		t.Mu.Unlock()
		return
	}
	p := t.Seats[t.CurrentTurnSeat]
	if p == nil || time.Since(t.TurnStartedAt) < l.Cfg.TurnTimeout {
		t.Mu.Unlock()
		return
	}
	userID := p.UserID
	seat := p.Seat
	t.Mu.Unlock()

	if l.Deciders.IsBot(userID) {
		return
	}

	t.Mu.Lock()
	// Re-check under the lock: the player may have acted in the gap.
	if t.CurrentTurnSeat != seat || time.Since(t.TurnStartedAt) < l.Cfg.TurnTimeout {
		t.Mu.Unlock()
		return
	}
	action := "fold"
	if t.AvailableActions(userID).CallAmount <= 0 {
		action = "check"
	}
	result, err := t.ProcessAction(userID, action, 0)
	if err != nil {
		t.Mu.Unlock()
		log.Printf("[GAME_LOOP] timeout action failed for %s on %s: %v", userID, tableID, err)
		return
	}
	t.Mu.Unlock()

	log.Printf("[GAME_LOOP] %s timed out on %s, auto-%s", userID, tableID, action)
	l.Out.BroadcastToChannel(tableChannel(tableID), events.New(events.TypeTimeoutFold, map[string]any{
		"table_id": tableID,
		"seat":     seat,
		"user_id":  userID,
		"action":   action,
	}))

	if result != nil {
		l.finishHand(t, *result)
		return
	}
	go l.ProcessBotTurns(tableID)
}
