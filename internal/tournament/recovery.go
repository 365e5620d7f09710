package tournament

import (
	"context"
	"errors"
	"log"
	"time"

	"pokercore/internal/ranking"
	"pokercore/internal/snapshot"
)

// restartDelay gives the rest of the process (WS gateway, game loop)
// a moment to come up before recovered tables start dealing again.
const restartDelay = 2 * time.Second

// Recover rehydrates every non-terminal tournament from its latest
// sealed snapshot, re-syncs the ranking backend, and schedules hand
// restarts on tables that were between hands at crash time. Terminal
// snapshots are deleted. Called once at engine startup.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.snaps == nil {
		return 0, nil
	}
	ids, err := e.snaps.ListTournamentIDs(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		var state State
		if _, err := e.snaps.Load(ctx, id, &state); err != nil {
			if errors.Is(err, snapshot.ErrSealMismatch) {
				// Fatal for this tournament: never trust an unverified
				// snapshot.
				log.Printf("[TOURNAMENT] ✗ snapshot for %s failed integrity check, skipping recovery", id)
				continue
			}
			log.Printf("[TOURNAMENT] snapshot load failed for %s: %v", id, err)
			continue
		}

		if state.Status.IsTerminal() {
			if err := e.snaps.Delete(ctx, id); err != nil {
				log.Printf("[TOURNAMENT] failed to delete terminal snapshot for %s: %v", id, err)
			}
			continue
		}

		e.rehydrate(ctx, state)
		recovered++
	}

	if recovered > 0 {
		log.Printf("[TOURNAMENT] recovered %d tournament(s) from snapshots", recovered)
	}
	return recovered, nil
}

func (e *Engine) rehydrate(ctx context.Context, state State) {
	// A crash mid-hand leaves hand_in_progress set; the hand itself is
	// gone, so clear the flags and let the restart path deal fresh.
	var restartTables []string
	for id, t := range state.Tables {
		t.HandInProgress = false
		if t.PlayerCount() >= 2 {
			restartTables = append(restartTables, id)
		}
	}
	// Level timing resumes from now; the blind scheduler's own recovery
	// carries the precise elapsed time when it has persisted state.
	if level, ok := state.CurrentBlind(); ok && !state.Status.IsTerminal() {
		if time.Now().After(state.NextLevelAt) {
			state.LevelStartedAt = time.Now()
			state.NextLevelAt = time.Now().Add(level.Duration())
		}
	}
	updateRanking(&state)
	e.store.Put(state)

	if e.rank != nil {
		players := make([]ranking.PlayerState, 0, len(state.Players))
		for _, p := range state.Players {
			players = append(players, ranking.PlayerState{
				UserID:   p.UserID,
				Nickname: p.Nickname,
				Chips:    p.Chips,
				TableID:  p.TableID,
				IsActive: p.IsActive,
			})
		}
		if err := e.rank.SyncFromState(ctx, state.TournamentID, players); err != nil {
			log.Printf("[TOURNAMENT] ranking sync failed for %s: %v", state.TournamentID, err)
		}
	}

	log.Printf("[TOURNAMENT] rehydrated %s (%s, %d players, %d tables)", state.TournamentID, state.Status, len(state.Players), len(state.Tables))

	if e.tables == nil || state.Status == StatusPaused {
		return
	}
	tournamentID := state.TournamentID
	for _, tableID := range restartTables {
		tableID := tableID
		time.AfterFunc(restartDelay, func() {
			select {
			case <-e.stop:
				return
			default:
			}
			e.markHandInProgress(tournamentID, tableID)
			e.tables.StartTournamentHand(tournamentID, tableID)
		})
	}
}
