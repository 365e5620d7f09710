package tournament

import (
	"context"
	"log"
	"time"

	"pokercore/internal/balancer"
	"pokercore/internal/config"
	"pokercore/internal/events"
	"pokercore/internal/lock"
	"pokercore/internal/snapshot"
)

// RunBlindLoop advances blind levels for every running tournament on a
// one-second tick, emitting the T−30s warning once per level and saving
// a full snapshot at each level-up.
func (e *Engine) RunBlindLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			for _, id := range e.store.Running() {
				e.checkBlindLevel(ctx, id)
			}
		}
	}
}

func (e *Engine) checkBlindLevel(ctx context.Context, tournamentID string) {
	state, ok := e.store.Get(tournamentID)
	if !ok || state.NextLevelAt.IsZero() {
		return
	}
	now := time.Now()

	remaining := state.NextLevelAt.Sub(now)
	if remaining > 0 && remaining <= 30*time.Second {
		e.mu.Lock()
		warned := e.warnedLevel[tournamentID] > state.CurrentLevel
		if !warned {
			e.warnedLevel[tournamentID] = state.CurrentLevel + 1
		}
		e.mu.Unlock()
		if !warned {
			e.emit(events.EvtBlindIncreaseWarn, tournamentID, "", "", map[string]any{
				"seconds_remaining": int(remaining.Seconds()),
				"next_level":        state.CurrentLevel + 2,
			})
		}
	}

	if now.Before(state.NextLevelAt) {
		return
	}

	err := e.withLock(ctx, tournamentID, config.ScopeBlind, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok || time.Now().Before(state.NextLevelAt) {
			return nil
		}
		if state.CurrentLevel+1 >= len(state.Config.BlindStructure) {
			return nil
		}
		state.CurrentLevel++
		state.LevelStartedAt = time.Now()
		level := state.Config.BlindStructure[state.CurrentLevel]
		state.NextLevelAt = state.LevelStartedAt.Add(level.Duration())
		e.store.Put(state)
		e.saveSnapshot(ctx, state, snapshot.TypeFull)

		e.emit(events.EvtBlindLevelChanged, tournamentID, "", "", map[string]any{
			"level":         level.Level,
			"small_blind":   level.SmallBlind,
			"big_blind":     level.BigBlind,
			"ante":          level.Ante,
			"next_level_at": state.NextLevelAt,
		})
		log.Printf("[TOURNAMENT] %s blinds up to level %d (SB %d / BB %d)", tournamentID, level.Level, level.SmallBlind, level.BigBlind)
		return nil
	})
	if err != nil {
		log.Printf("[TOURNAMENT] blind level advance failed for %s: %v", tournamentID, err)
	}
}

// RunBalancingLoop recomputes a balancing plan for every running
// tournament on a two-second tick and executes the moves whose source
// tables are idle; moves off in-hand tables are queued until that
// table's hand completes.
func (e *Engine) RunBalancingLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			for _, id := range e.store.Running() {
				e.checkAndBalance(ctx, id)
			}
		}
	}
}

func (e *Engine) checkAndBalance(ctx context.Context, tournamentID string) {
	state, ok := e.store.Get(tournamentID)
	if !ok {
		return
	}

	// A plan already queued against an in-hand table must drain before
	// computing a fresh one, or moves double up.
	e.mu.Lock()
	pending := 0
	for _, moves := range e.pendingMoves {
		pending += len(moves)
	}
	e.mu.Unlock()
	if pending > 0 {
		return
	}

	infos := balancerView(state)
	if len(infos) <= 1 {
		return
	}
	plan := balancer.New(2, state.Config.PlayersPerTable).ComputePlan(infos)
	if plan.TotalMoves() == 0 {
		return
	}
	log.Printf("[TOURNAMENT] %s balancing: %d moves, priority %s", tournamentID, plan.TotalMoves(), plan.Priority)

	for _, move := range plan.Moves {
		if move.ExecuteAfterHand {
			e.mu.Lock()
			e.pendingMoves[move.FromTable] = append(e.pendingMoves[move.FromTable], move)
			e.mu.Unlock()
			continue
		}
		if err := e.executeMove(ctx, tournamentID, move); err != nil {
			log.Printf("[TOURNAMENT] move failed (%s): %v", move.Describe(), err)
		}
	}
}

// balancerView projects engine state into the planner's input.
func balancerView(state State) []balancer.TableInfo {
	infos := make([]balancer.TableInfo, 0, len(state.Tables))
	for _, t := range state.Tables {
		info := balancer.TableInfo{
			TableID:        t.TableID,
			MaxSeats:       t.MaxSeats,
			HandInProgress: t.HandInProgress,
			ButtonSeat:     t.ButtonSeat,
		}
		for seat, uid := range t.Seats {
			if uid != "" {
				info.Players = append(info.Players, balancer.SeatedPlayer{UserID: uid, Seat: seat})
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// executePendingMoves drains the queue for a table whose hand just
// completed.
func (e *Engine) executePendingMoves(ctx context.Context, tournamentID, tableID string) {
	e.mu.Lock()
	moves := e.pendingMoves[tableID]
	delete(e.pendingMoves, tableID)
	e.mu.Unlock()

	for _, move := range moves {
		if err := e.executeMove(ctx, tournamentID, move); err != nil {
			log.Printf("[TOURNAMENT] deferred move failed (%s): %v", move.Describe(), err)
		}
	}
}

// executeMove relocates one player between tables under both tables'
// locks, acquired in sorted key order via the multi-lock primitive.
func (e *Engine) executeMove(ctx context.Context, tournamentID string, move balancer.Move) error {
	apply := func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		src, srcOK := state.Tables[move.FromTable]
		dst, dstOK := state.Tables[move.ToTable]
		p, playerOK := state.Players[move.UserID]
		if !srcOK || !dstOK || !playerOK || !p.IsActive {
			return nil
		}
		if move.FromSeat >= len(src.Seats) || src.Seats[move.FromSeat] != move.UserID {
			return nil
		}
		if move.ToSeat >= len(dst.Seats) || dst.Seats[move.ToSeat] != "" {
			return nil
		}

		src.Seats[move.FromSeat] = ""
		dst.Seats[move.ToSeat] = move.UserID
		p.TableID = move.ToTable
		p.Seat = move.ToSeat

		// A broken table with nobody left disappears.
		if src.PlayerCount() == 0 {
			delete(state.Tables, move.FromTable)
		}
		e.store.Put(state)

		e.emit(events.EvtPlayerMoved, tournamentID, move.ToTable, move.UserID, map[string]any{
			"from_table": move.FromTable,
			"to_table":   move.ToTable,
			"to_seat":    move.ToSeat,
			"priority":   move.Priority.String(),
		})
		log.Printf("[TOURNAMENT] moved %s", move.Describe())
		return nil
	}

	if e.locks == nil {
		return apply()
	}
	keys := []string{
		config.ScopedLockKey(tournamentID, config.ScopeTable, move.FromTable),
		config.ScopedLockKey(tournamentID, config.ScopeTable, move.ToTable),
	}
	held, err := e.locks.AcquireMulti(ctx, e.lockTTL, keys...)
	if err != nil {
		return err
	}
	defer lock.ReleaseMulti(ctx, held)
	return apply()
}
