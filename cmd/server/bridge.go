package main

import (
	"context"
	"log"
	"sync"
	"time"

	"pokercore/internal/gameloop"
	"pokercore/internal/table"
	"pokercore/internal/tournament"
)

// tournamentBridge connects the tournament engine to the per-table game
// loop: it materializes tournament table assignments as live gameloop
// tables before each hand and feeds finished hands back into the
// engine. The engine itself never imports the game loop.
type tournamentBridge struct {
	manager *gameloop.Manager
	loop    *gameloop.Loop
	engine  *tournament.Engine

	mu           sync.Mutex
	tableToTourn map[string]string
}

func newTournamentBridge(manager *gameloop.Manager, loop *gameloop.Loop) *tournamentBridge {
	return &tournamentBridge{
		manager:      manager,
		loop:         loop,
		tableToTourn: make(map[string]string),
	}
}

// StartTournamentHand implements tournament.TableStarter: sync the
// gameloop table to the engine's seat/chip assignments and current
// blind level, then deal.
func (b *tournamentBridge) StartTournamentHand(tournamentID, tableID string) {
	state, ok := b.engine.Store().Get(tournamentID)
	if !ok {
		return
	}
	ts, ok := state.Tables[tableID]
	if !ok {
		return
	}
	level, ok := state.CurrentBlind()
	if !ok {
		return
	}

	b.mu.Lock()
	b.tableToTourn[tableID] = tournamentID
	b.mu.Unlock()

	cfg := table.Config{
		SmallBlind: level.SmallBlind,
		BigBlind:   level.BigBlind,
		MinBuyIn:   1, // tournament stacks are engine-assigned, not bought in
		MaxBuyIn:   0,
		MaxSeats:   ts.MaxSeats,
	}
	t := b.manager.GetOrCreateTable(tableID, cfg)

	t.Mu.Lock()
	t.Config.SmallBlind = level.SmallBlind
	t.Config.BigBlind = level.BigBlind

	// Drop seats the engine no longer assigns here (busts, moves out).
	for seat, p := range t.Seats {
		if p == nil {
			continue
		}
		if seat >= len(ts.Seats) || ts.Seats[seat] != p.UserID {
			t.Seats[seat] = nil
		}
	}
	// Seat newcomers with their tournament stacks.
	for seat, uid := range ts.Seats {
		if uid == "" || t.Seats[seat] != nil {
			continue
		}
		player := state.Players[uid]
		if player == nil || player.Chips <= 0 {
			continue
		}
		if err := t.SeatPlayer(seat, uid, player.Nickname, player.Chips, false); err != nil {
			log.Printf("[BRIDGE] seat %s at %s/%d failed: %v", uid, tableID, seat, err)
			continue
		}
		if err := t.SitIn(seat); err != nil {
			log.Printf("[BRIDGE] sit-in %s at %s failed: %v", uid, tableID, err)
		}
	}
	// Returning players carry their engine-tracked stacks.
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		if player := state.Players[p.UserID]; player != nil {
			p.Stack = player.Chips
			if p.Stack > 0 {
				p.Status = table.StatusActive
			}
		}
	}
	t.Mu.Unlock()

	// The previous hand's processing window may still be draining when
	// the engine schedules the next deal; retry briefly before giving up.
	for attempt := 0; attempt < 10; attempt++ {
		if b.loop.TryStartGame(tableID) {
			return
		}
		time.Sleep(300 * time.Millisecond)
	}
	log.Printf("[BRIDGE] could not start hand on %s (tournament %s)", tableID, tournamentID)
}

// onHandComplete implements the game loop's completion hook: translate
// the table result into the engine's HandResult. Returns false for
// cash tables so the loop keeps its own restart schedule.
func (b *tournamentBridge) onHandComplete(tableID string, result table.HandResult) bool {
	b.mu.Lock()
	tournamentID, ok := b.tableToTourn[tableID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	t, found := b.manager.GetTable(tableID)
	if !found {
		return true
	}

	t.Mu.Lock()
	chipChanges := make(map[string]int)
	var eliminated []string
	for seat, start := range t.StartingStacks {
		p := t.Seats[seat]
		if p == nil {
			continue
		}
		if delta := p.Stack - start; delta != 0 {
			chipChanges[p.UserID] = delta
		}
		if p.Stack == 0 {
			eliminated = append(eliminated, p.UserID)
		}
	}
	var winners []string
	for _, w := range result.Winners {
		winners = append(winners, w.UserID)
	}
	t.Mu.Unlock()

	err := b.engine.CompleteHand(context.Background(), tournamentID, tournament.HandResult{
		TableID:     tableID,
		Winners:     winners,
		ChipChanges: chipChanges,
		Eliminated:  eliminated,
	})
	if err != nil {
		log.Printf("[BRIDGE] hand completion for %s failed: %v", tableID, err)
	}
	return true
}
