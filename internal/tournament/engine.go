package tournament

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pokercore/internal/balancer"
	"pokercore/internal/config"
	"pokercore/internal/events"
	"pokercore/internal/lock"
	"pokercore/internal/ranking"
	"pokercore/internal/settlement"
	"pokercore/internal/snapshot"
)

// Locker is the distributed-lock surface the engine needs; implemented
// by lock.Manager. A nil Locker (tests, single-instance dev) skips
// locking entirely.
type Locker interface {
	AcquireScope(ctx context.Context, tournamentID string, scope config.LockScope, resource string, ttl time.Duration) (*lock.Lock, error)
	AcquireMulti(ctx context.Context, ttl time.Duration, keys ...string) ([]*lock.Lock, error)
}

// RankingSink is the leaderboard surface, implemented by ranking.Engine.
type RankingSink interface {
	Initialize(tournamentID string)
	RegisterPlayer(ctx context.Context, tournamentID, userID, nickname string, chips int) error
	UpdateChips(ctx context.Context, tournamentID, userID string, chips int, tableID string) error
	EliminatePlayer(ctx context.Context, tournamentID, userID string) error
	SyncFromState(ctx context.Context, tournamentID string, players []ranking.PlayerState) error
	Cleanup(ctx context.Context, tournamentID string) error
}

// SnapshotStore is the crash-recovery surface, implemented by
// snapshot.Manager.
type SnapshotStore interface {
	Save(ctx context.Context, tournamentID string, typ snapshot.Type, v any) error
	Load(ctx context.Context, tournamentID string, out any) (snapshot.Metadata, error)
	Delete(ctx context.Context, tournamentID string) error
	DeleteHand(ctx context.Context, tournamentID, tableID string) error
	ListTournamentIDs(ctx context.Context) ([]string, error)
}

// Settler distributes the prize pool on completion, implemented by
// settlement.Service.
type Settler interface {
	Settle(ctx context.Context, in settlement.Input) settlement.Summary
}

// TableStarter kicks off a hand on a tournament table; wired to the
// game loop at process assembly so this package never imports it.
type TableStarter interface {
	StartTournamentHand(tournamentID, tableID string)
}

// EventPublisher receives every tournament event the engine emits; the
// process wiring fans it out to the WS gateway and the Redis stream.
type EventPublisher func(evt events.TournamentEvent)

// Engine coordinates every tournament hosted by this instance.
type Engine struct {
	store   *Store
	locks   Locker
	rank    RankingSink
	snaps   SnapshotStore
	settler Settler
	tables  TableStarter
	publish EventPublisher

	lockTTL time.Duration

	mu           sync.Mutex
	pendingMoves map[string][]balancer.Move // keyed by source table ID
	warnedLevel  map[string]int             // last level a T-30s warning fired for

	stop chan struct{}
	once sync.Once
}

// NewEngine assembles a tournament engine. Any dependency may be nil;
// the corresponding side effects are skipped (used heavily by tests and
// single-instance development).
func NewEngine(locks Locker, rank RankingSink, snaps SnapshotStore, settler Settler, tables TableStarter, publish EventPublisher) *Engine {
	if publish == nil {
		publish = func(events.TournamentEvent) {}
	}
	return &Engine{
		store:        NewStore(),
		locks:        locks,
		rank:         rank,
		snaps:        snaps,
		settler:      settler,
		tables:       tables,
		publish:      publish,
		lockTTL:      10 * time.Second,
		pendingMoves: make(map[string][]balancer.Move),
		warnedLevel:  make(map[string]int),
		stop:         make(chan struct{}),
	}
}

// Store exposes the state store for read-only callers (WS handlers,
// admin queries).
func (e *Engine) Store() *Store { return e.store }

// withLock runs fn while holding the tournament-scoped distributed
// lock, or directly when no Locker is configured.
func (e *Engine) withLock(ctx context.Context, tournamentID string, scope config.LockScope, resource string, fn func() error) error {
	if e.locks == nil {
		return fn()
	}
	l, err := e.locks.AcquireScope(ctx, tournamentID, scope, resource, e.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(ctx); rerr != nil {
			log.Printf("[TOURNAMENT] release %s/%s: %v", tournamentID, scope, rerr)
		}
	}()
	return fn()
}

// CreateTournament registers a new tournament in REGISTERING state.
func (e *Engine) CreateTournament(ctx context.Context, cfg Config) (State, error) {
	if err := validateConfig(cfg); err != nil {
		return State{}, err
	}
	state := State{
		TournamentID: uuid.New().String(),
		Config:       cfg,
		Status:       StatusRegistering,
		Players:      make(map[string]*Player),
		Tables:       make(map[string]*TableState),
		CreatedAt:    time.Now(),
	}
	e.store.Put(state)
	if e.rank != nil {
		e.rank.Initialize(state.TournamentID)
	}
	log.Printf("[TOURNAMENT] created %s (%q, buy-in %d, %d-max tables)", state.TournamentID, cfg.Name, cfg.BuyIn, cfg.PlayersPerTable)
	return state, nil
}

func validateConfig(cfg Config) error {
	if len(cfg.BlindStructure) == 0 {
		return fmt.Errorf("%w: empty blind structure", ErrInvalidConfig)
	}
	if cfg.StartingChips <= 0 {
		return fmt.Errorf("%w: starting chips must be positive", ErrInvalidConfig)
	}
	if cfg.PlayersPerTable != 6 && cfg.PlayersPerTable != 9 {
		return fmt.Errorf("%w: players per table must be 6 or 9", ErrInvalidConfig)
	}
	if cfg.MinPlayers < 2 {
		return fmt.Errorf("%w: min players must be at least 2", ErrInvalidConfig)
	}
	if cfg.MaxPlayers < cfg.MinPlayers {
		return fmt.Errorf("%w: max players below min players", ErrInvalidConfig)
	}
	sum := 0.0
	for _, f := range cfg.PayoutStructure {
		sum += f
	}
	if len(cfg.PayoutStructure) == 0 || sum > 1.000001 {
		return fmt.Errorf("%w: payout fractions must sum to at most 1", ErrInvalidConfig)
	}
	return nil
}

// RegisterPlayer adds an entrant under the tournament lock. Late
// registration stays open while the tournament runs within the
// configured late-reg level window.
func (e *Engine) RegisterPlayer(ctx context.Context, tournamentID, userID, nickname string) error {
	return e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		switch {
		case state.Status == StatusRegistering:
		case state.Status == StatusRunning && state.CurrentLevel < state.Config.LateRegLevels:
		default:
			return ErrRegistrationClosed
		}
		if len(state.Players) >= state.Config.MaxPlayers {
			return ErrTournamentFull
		}
		if _, dup := state.Players[userID]; dup {
			return ErrDuplicateRegistration
		}

		state.Players[userID] = &Player{
			UserID:   userID,
			Nickname: nickname,
			Chips:    state.Config.StartingChips,
			Seat:     -1,
			IsActive: true,
		}
		state.PrizePool += state.Config.BuyIn

		// Late entrants get seated immediately at the emptiest table.
		if state.Status != StatusRegistering {
			e.seatLateEntrant(&state, userID)
		}

		updateRanking(&state)
		e.store.Put(state)

		if e.rank != nil {
			if err := e.rank.RegisterPlayer(ctx, tournamentID, userID, nickname, state.Config.StartingChips); err != nil {
				log.Printf("[TOURNAMENT] ranking register failed for %s: %v", userID, err)
			}
		}
		e.emit(events.EvtPlayerRegistered, tournamentID, "", userID, map[string]any{
			"nickname":   nickname,
			"players":    len(state.Players),
			"prize_pool": state.PrizePool,
		})
		log.Printf("[TOURNAMENT] %s registered for %s (%d/%d)", userID, tournamentID, len(state.Players), state.Config.MaxPlayers)
		return nil
	})
}

func (e *Engine) seatLateEntrant(state *State, userID string) {
	var best *TableState
	for _, t := range state.Tables {
		if t.PlayerCount() >= t.MaxSeats {
			continue
		}
		if best == nil || t.PlayerCount() < best.PlayerCount() {
			best = t
		}
	}
	if best == nil {
		return
	}
	for seat, uid := range best.Seats {
		if uid == "" {
			best.Seats[seat] = userID
			state.Players[userID].TableID = best.TableID
			state.Players[userID].Seat = seat
			return
		}
	}
}

// StartTournament validates the field, builds tables with round-robin
// seating, enters STARTING, and schedules the shotgun start after the
// configured countdown.
func (e *Engine) StartTournament(ctx context.Context, tournamentID string) error {
	var countdown time.Duration
	err := e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.Status != StatusRegistering {
			return ErrAlreadyStarted
		}
		if len(state.Players) < state.Config.MinPlayers {
			return fmt.Errorf("%w: %d of %d", ErrNotEnoughPlayers, len(state.Players), state.Config.MinPlayers)
		}

		e.createTablesAndSeat(&state)

		countdown = time.Duration(state.Config.CountdownSeconds) * time.Second
		target := time.Now().Add(countdown)
		state.Status = StatusStarting
		state.TargetStartTime = &target
		state.ITMThreshold = settlement.ITMCount(len(state.Players), state.Config.ITMPercentage, len(state.Config.PayoutStructure))
		updateRanking(&state)
		e.store.Put(state)

		e.saveSnapshot(ctx, state, snapshot.TypeFull)
		e.emit(events.EvtTournamentStarted, tournamentID, "", "", map[string]any{
			"target_start_time": target,
			"players":           len(state.Players),
			"tables":            len(state.Tables),
			"prize_pool":        state.PrizePool,
		})
		log.Printf("[TOURNAMENT] %s starting: %d players over %d tables, shotgun in %v", tournamentID, len(state.Players), len(state.Tables), countdown)
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-e.stop:
			return
		case <-time.After(countdown):
			e.ExecuteShotgunStart(ctx, tournamentID)
		}
	}()
	return nil
}

// createTablesAndSeat shuffles the field, distributes it round-robin so
// table sizes differ by at most one, and assigns random seats within
// each table.
func (e *Engine) createTablesAndSeat(state *State) {
	playerIDs := make([]string, 0, len(state.Players))
	for uid := range state.Players {
		playerIDs = append(playerIDs, uid)
	}
	sort.Strings(playerIDs)
	rand.Shuffle(len(playerIDs), func(i, j int) {
		playerIDs[i], playerIDs[j] = playerIDs[j], playerIDs[i]
	})

	perTable := state.Config.PlayersPerTable
	numTables := (len(playerIDs) + perTable - 1) / perTable

	groups := make([][]string, numTables)
	for i, uid := range playerIDs {
		groups[i%numTables] = append(groups[i%numTables], uid)
	}

	for i, group := range groups {
		tableID := fmt.Sprintf("%s-table-%d", state.TournamentID, i+1)
		t := &TableState{
			TableID:  tableID,
			Seats:    make([]string, perTable),
			MaxSeats: perTable,
		}
		seats := rand.Perm(perTable)[:len(group)]
		sort.Ints(seats)
		for j, uid := range group {
			t.Seats[seats[j]] = uid
			state.Players[uid].TableID = tableID
			state.Players[uid].Seat = seats[j]
		}
		state.Tables[tableID] = t
	}
}

// ExecuteShotgunStart flips the tournament to RUNNING and deals the
// first hand on every table at the same instant.
func (e *Engine) ExecuteShotgunStart(ctx context.Context, tournamentID string) {
	var tableIDs []string
	err := e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.Status != StatusStarting {
			return fmt.Errorf("tournament %s not in STARTING (is %s)", tournamentID, state.Status)
		}
		now := time.Now()
		state.Status = StatusRunning
		state.StartedAt = &now
		state.LevelStartedAt = now
		if level, ok := state.CurrentBlind(); ok {
			state.NextLevelAt = now.Add(level.Duration())
		}
		for id, t := range state.Tables {
			if t.PlayerCount() >= 2 {
				t.HandInProgress = true
				tableIDs = append(tableIDs, id)
			}
		}
		e.store.Put(state)
		e.saveSnapshot(ctx, state, snapshot.TypeFull)
		return nil
	})
	if err != nil {
		log.Printf("[TOURNAMENT] shotgun start failed for %s: %v", tournamentID, err)
		return
	}

	e.emit(events.EvtTournamentStarted, tournamentID, "", "", map[string]any{"phase": "shotgun", "tables": len(tableIDs)})
	log.Printf("[TOURNAMENT] 🔫 shotgun start: %s dealing %d tables", tournamentID, len(tableIDs))
	for _, tableID := range tableIDs {
		if e.tables != nil {
			go e.tables.StartTournamentHand(tournamentID, tableID)
		}
	}
}

// HandResult is the table-level outcome fed into CompleteHand.
type HandResult struct {
	TableID     string
	Winners     []string
	ChipChanges map[string]int // user ID -> delta this hand
	Eliminated  []string       // busted this hand, biggest starting stack first
}

// CompleteHand applies one table's finished hand: chip movement,
// eliminations with top-down ranks, status transitions, ranking
// updates, and pending balancing moves for the now-idle table.
func (e *Engine) CompleteHand(ctx context.Context, tournamentID string, result HandResult) error {
	var completed bool
	var finalState State
	err := e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.Status.IsTerminal() {
			return nil
		}

		for uid, delta := range result.ChipChanges {
			if p, ok := state.Players[uid]; ok {
				p.Chips += delta
				if p.Chips < 0 {
					log.Printf("[TOURNAMENT] ⚠️  negative chips for %s after hand on %s", uid, result.TableID)
					p.Chips = 0
				}
			}
		}

		// Ranks issue top-down: with N players still alive before this
		// hand, the first bust-out of the hand finishes Nth.
		activeBefore := 0
		for _, p := range state.Players {
			if p.IsActive {
				activeBefore++
			}
		}
		now := time.Now()
		for _, uid := range result.Eliminated {
			p, ok := state.Players[uid]
			if !ok || !p.IsActive {
				continue
			}
			p.IsActive = false
			p.Chips = 0
			p.EliminationRank = activeBefore
			p.EliminatedAt = &now
			activeBefore--
			e.emit(events.EvtPlayerEliminated, tournamentID, result.TableID, uid, map[string]any{"rank": p.EliminationRank})
			log.Printf("[TOURNAMENT] %s eliminated from %s in place %d", uid, tournamentID, p.EliminationRank)
		}

		if t, ok := state.Tables[result.TableID]; ok {
			for seat, uid := range t.Seats {
				if uid == "" {
					continue
				}
				if p, ok := state.Players[uid]; ok && !p.IsActive {
					t.Seats[seat] = ""
				}
			}
			t.HandInProgress = false
		}

		active := state.ActiveCount()
		switch {
		case active <= 1:
			state.Status = StatusCompleted
			state.CompletedAt = &now
			completed = true
		case active <= 2:
			state.Status = StatusHeadsUp
		case active <= state.Config.PlayersPerTable && state.Status == StatusRunning:
			state.Status = StatusFinalTable
		}

		updateRanking(&state)
		e.store.Put(state)
		finalState = state

		if e.rank != nil {
			for uid := range result.ChipChanges {
				if p, ok := state.Players[uid]; ok && p.IsActive {
					if err := e.rank.UpdateChips(ctx, tournamentID, uid, p.Chips, p.TableID); err != nil {
						log.Printf("[TOURNAMENT] ranking update failed for %s: %v", uid, err)
					}
				}
			}
			for _, uid := range result.Eliminated {
				if err := e.rank.EliminatePlayer(ctx, tournamentID, uid); err != nil {
					log.Printf("[TOURNAMENT] ranking eliminate failed for %s: %v", uid, err)
				}
			}
		}
		if e.snaps != nil {
			if err := e.snaps.DeleteHand(ctx, tournamentID, result.TableID); err != nil {
				log.Printf("[TOURNAMENT] clear hand snapshot failed: %v", err)
			}
		}

		e.emit(events.EvtTableHandCompleted, tournamentID, result.TableID, "", map[string]any{
			"winners":    result.Winners,
			"eliminated": result.Eliminated,
			"active":     active,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if completed {
		e.settle(ctx, finalState)
		return nil
	}

	e.executePendingMoves(ctx, tournamentID, result.TableID)

	// Deal the next hand if the table still has opponents.
	if e.tables != nil {
		if state, ok := e.store.Get(tournamentID); ok && !state.Status.IsTerminal() && state.Status != StatusPaused {
			if t, ok := state.Tables[result.TableID]; ok && t.PlayerCount() >= 2 {
				e.markHandInProgress(tournamentID, result.TableID)
				go e.tables.StartTournamentHand(tournamentID, result.TableID)
			}
		}
	}
	return nil
}

func (e *Engine) markHandInProgress(tournamentID, tableID string) {
	if state, ok := e.store.Get(tournamentID); ok {
		if t, ok := state.Tables[tableID]; ok {
			t.HandInProgress = true
			e.store.Put(state)
		}
	}
}

// settle hands the completed tournament to the settlement service and
// broadcasts the summary.
func (e *Engine) settle(ctx context.Context, state State) {
	ranked := FinalRanking(state)
	var summary settlement.Summary
	if e.settler != nil {
		summary = e.settler.Settle(ctx, settlement.Input{
			TournamentID:    state.TournamentID,
			PrizePool:       state.PrizePool,
			PayoutStructure: state.Config.PayoutStructure,
			ITMPercentage:   state.Config.ITMPercentage,
			TotalPlayers:    len(state.Players),
			FinalRanking:    ranked,
		})
	}
	if e.rank != nil {
		if err := e.rank.Cleanup(ctx, state.TournamentID); err != nil {
			log.Printf("[TOURNAMENT] ranking cleanup failed: %v", err)
		}
	}
	e.saveSnapshot(ctx, state, snapshot.TypeFull)
	e.emit(events.EvtTournamentCompleted, state.TournamentID, "", "", map[string]any{"settlement": summary})
	log.Printf("[TOURNAMENT] 🏆 %s completed, %d paid of %d entrants", state.TournamentID, summary.ITMCount, len(state.Players))
}

// FinalRanking orders the field: surviving players by chips descending,
// then eliminated players by elimination rank ascending.
func FinalRanking(state State) []settlement.RankedPlayer {
	var alive, out []*Player
	for _, p := range state.Players {
		if p.IsActive {
			alive = append(alive, p)
		} else {
			out = append(out, p)
		}
	}
	sort.Slice(alive, func(i, j int) bool {
		if alive[i].Chips != alive[j].Chips {
			return alive[i].Chips > alive[j].Chips
		}
		return alive[i].UserID < alive[j].UserID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EliminationRank < out[j].EliminationRank })

	ranked := make([]settlement.RankedPlayer, 0, len(alive)+len(out))
	rank := 1
	for _, p := range alive {
		ranked = append(ranked, settlement.RankedPlayer{UserID: p.UserID, Rank: rank, Chips: p.Chips})
		rank++
	}
	for _, p := range out {
		ranked = append(ranked, settlement.RankedPlayer{UserID: p.UserID, Rank: p.EliminationRank, Chips: 0})
	}
	return ranked
}

// Rebuy re-arms a busted entrant during the late-registration window.
func (e *Engine) Rebuy(ctx context.Context, tournamentID, userID string) error {
	return e.withLock(ctx, tournamentID, config.ScopePlayer, userID, func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.CurrentLevel >= state.Config.LateRegLevels || state.Status.IsTerminal() {
			return ErrRebuyNotAllowed
		}
		p, ok := state.Players[userID]
		if !ok {
			return ErrTournamentNotFound
		}
		if p.Chips > 0 || p.RebuyCount >= state.Config.MaxRebuys {
			return ErrRebuyNotAllowed
		}

		chips := state.Config.RebuyChips
		if chips == 0 {
			chips = state.Config.StartingChips
		}
		p.Chips = chips
		p.IsActive = true
		p.EliminationRank = 0
		p.EliminatedAt = nil
		p.RebuyCount++
		state.TotalRebuys++
		state.PrizePool += state.Config.BuyIn
		if p.TableID == "" {
			e.seatLateEntrant(&state, userID)
		}
		updateRanking(&state)
		e.store.Put(state)

		if e.rank != nil {
			if err := e.rank.UpdateChips(ctx, tournamentID, userID, chips, p.TableID); err != nil {
				log.Printf("[TOURNAMENT] ranking rebuy update failed: %v", err)
			}
		}
		log.Printf("[TOURNAMENT] %s rebought into %s (rebuy #%d)", userID, tournamentID, p.RebuyCount)
		return nil
	})
}

// Pause freezes a running tournament, recording the prior status so
// Resume can restore it.
func (e *Engine) Pause(ctx context.Context, tournamentID, reason string) error {
	return e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		switch state.Status {
		case StatusRunning, StatusFinalTable, StatusHeadsUp:
		default:
			return ErrNotRunning
		}
		state.PauseReason = fmt.Sprintf("%s|%s", state.Status, reason)
		state.Status = StatusPaused
		e.store.Put(state)
		e.emit(events.EvtTournamentPaused, tournamentID, "", "", map[string]any{"reason": reason})
		log.Printf("[TOURNAMENT] paused %s: %s", tournamentID, reason)
		return nil
	})
}

// Resume restores the status the tournament held when it was paused.
func (e *Engine) Resume(ctx context.Context, tournamentID string) error {
	var tableIDs []string
	err := e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.Status != StatusPaused {
			return ErrNotPaused
		}
		prior := StatusRunning
		for i := 0; i < len(state.PauseReason); i++ {
			if state.PauseReason[i] == '|' {
				prior = Status(state.PauseReason[:i])
				break
			}
		}
		state.Status = prior
		state.PauseReason = ""
		// The pause consumed level time; push the boundary out by
		// leaving NextLevelAt alone only if it is still in the future.
		if time.Now().After(state.NextLevelAt) {
			if level, ok := state.CurrentBlind(); ok {
				state.NextLevelAt = time.Now().Add(level.Duration())
				state.LevelStartedAt = time.Now()
			}
		}
		for id, t := range state.Tables {
			if t.PlayerCount() >= 2 && !t.HandInProgress {
				t.HandInProgress = true
				tableIDs = append(tableIDs, id)
			}
		}
		e.store.Put(state)
		e.emit(events.EvtTournamentResumed, tournamentID, "", "", nil)
		log.Printf("[TOURNAMENT] resumed %s as %s", tournamentID, prior)
		return nil
	})
	if err != nil {
		return err
	}
	for _, tableID := range tableIDs {
		if e.tables != nil {
			go e.tables.StartTournamentHand(tournamentID, tableID)
		}
	}
	return nil
}

// Cancel aborts a tournament that has not started.
func (e *Engine) Cancel(ctx context.Context, tournamentID, reason string) error {
	return e.withLock(ctx, tournamentID, config.ScopeTournament, "", func() error {
		state, ok := e.store.Get(tournamentID)
		if !ok {
			return ErrTournamentNotFound
		}
		if state.Status != StatusRegistering {
			return ErrAlreadyStarted
		}
		now := time.Now()
		state.Status = StatusCancelled
		state.CompletedAt = &now
		state.PauseReason = reason
		e.store.Put(state)
		if e.rank != nil {
			if err := e.rank.Cleanup(ctx, tournamentID); err != nil {
				log.Printf("[TOURNAMENT] ranking cleanup failed: %v", err)
			}
		}
		e.emit(events.EvtTournamentCancelled, tournamentID, "", "", map[string]any{"reason": reason})
		log.Printf("[TOURNAMENT] cancelled %s: %s", tournamentID, reason)
		return nil
	})
}

// updateRanking recomputes the chips-descending user ID order.
func updateRanking(state *State) {
	ids := make([]string, 0, len(state.Players))
	for uid := range state.Players {
		ids = append(ids, uid)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := state.Players[ids[i]], state.Players[ids[j]]
		if pi.Chips != pj.Chips {
			return pi.Chips > pj.Chips
		}
		return ids[i] < ids[j]
	})
	state.Ranking = ids
}

func (e *Engine) saveSnapshot(ctx context.Context, state State, typ snapshot.Type) {
	if e.snaps == nil {
		return
	}
	if err := e.snaps.Save(ctx, state.TournamentID, typ, state); err != nil {
		log.Printf("[TOURNAMENT] snapshot save failed for %s: %v", state.TournamentID, err)
	}
}

func (e *Engine) emit(typ events.TournamentEventType, tournamentID, tableID, userID string, payload map[string]any) {
	e.publish(events.TournamentEvent{
		EventID:      uuid.New().String(),
		EventType:    typ,
		TournamentID: tournamentID,
		TableID:      tableID,
		UserID:       userID,
		Timestamp:    time.Now(),
		Payload:      payload,
	})
}

// Shutdown stops the engine's background loops and pending timers.
func (e *Engine) Shutdown() {
	e.once.Do(func() { close(e.stop) })
}
