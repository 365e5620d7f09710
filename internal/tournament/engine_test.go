package tournament

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pokercore/internal/balancer"
	"pokercore/internal/blinds"
	"pokercore/internal/events"
	"pokercore/internal/settlement"
)

func moveFor(uid, from string, fromSeat int, to string, toSeat int) balancer.Move {
	return balancer.Move{
		MoveID:           "move-1",
		UserID:           uid,
		FromTable:        from,
		FromSeat:         fromSeat,
		ToTable:          to,
		ToSeat:           toSeat,
		Priority:         balancer.PriorityMedium,
		ExecuteAfterHand: true,
	}
}

type fakeStarter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeStarter) StartTournamentHand(tournamentID, tableID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tableID)
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSettler struct {
	mu     sync.Mutex
	inputs []settlement.Input
}

func (f *fakeSettler) Settle(ctx context.Context, in settlement.Input) settlement.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return settlement.Summary{TournamentID: in.TournamentID, ITMCount: settlement.ITMCount(in.TotalPlayers, in.ITMPercentage, len(in.PayoutStructure))}
}

func testConfig() Config {
	return Config{
		Name:          "Nightly Turbo",
		BuyIn:         100,
		StartingChips: 10000,
		BlindStructure: []blinds.BlindLevel{
			{Level: 1, SmallBlind: 25, BigBlind: 50, DurationMinutes: 10},
			{Level: 2, SmallBlind: 50, BigBlind: 100, DurationMinutes: 10},
		},
		PayoutStructure:  []float64{0.5, 0.3, 0.2},
		ITMPercentage:    12,
		PlayersPerTable:  9,
		MinPlayers:       2,
		MaxPlayers:       100,
		LateRegLevels:    1,
		CountdownSeconds: 3600, // shotgun fired manually in tests
		MaxRebuys:        1,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeStarter, *fakeSettler, *[]events.TournamentEvent) {
	t.Helper()
	starter := &fakeStarter{}
	settler := &fakeSettler{}
	var published []events.TournamentEvent
	var mu sync.Mutex
	e := NewEngine(nil, nil, nil, settler, starter, func(evt events.TournamentEvent) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, evt)
	})
	t.Cleanup(e.Shutdown)
	return e, starter, settler, &published
}

func registerN(t *testing.T, e *Engine, tid string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		uid := fmt.Sprintf("user-%02d", i)
		if err := e.RegisterPlayer(context.Background(), tid, uid, "Player"+uid); err != nil {
			t.Fatalf("register %s: %v", uid, err)
		}
		ids[i] = uid
	}
	return ids
}

func TestRegistrationValidation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.MaxPlayers = 2
	state, err := e.CreateTournament(ctx, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tid := state.TournamentID

	if err := e.RegisterPlayer(ctx, tid, "u1", "A"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := e.RegisterPlayer(ctx, tid, "u1", "A"); !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := e.RegisterPlayer(ctx, tid, "u2", "B"); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if err := e.RegisterPlayer(ctx, tid, "u3", "C"); !errors.Is(err, ErrTournamentFull) {
		t.Fatalf("expected full error, got %v", err)
	}
}

func TestChipConservationAcrossLifecycle(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	ids := registerN(t, e, tid, 9)

	if err := e.StartTournament(ctx, tid); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	if got, want := cur.TotalChips(), 9*10000; got != want {
		t.Fatalf("total chips after start = %d, want %d", got, want)
	}

	// One hand: ids[0] wins 10000 off ids[1], who busts.
	tableID := cur.Players[ids[0]].TableID
	err := e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		Winners:     []string{ids[0]},
		ChipChanges: map[string]int{ids[0]: 10000, ids[1]: -10000},
		Eliminated:  []string{ids[1]},
	})
	if err != nil {
		t.Fatalf("complete hand: %v", err)
	}
	cur, _ = e.store.Get(tid)
	if got, want := cur.TotalChips(), 9*10000; got != want {
		t.Fatalf("total chips after hand = %d, want %d", got, want)
	}
}

func TestShotgunStart25Players(t *testing.T) {
	e, starter, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	registerN(t, e, tid, 25)

	if err := e.StartTournament(ctx, tid); err != nil {
		t.Fatalf("start: %v", err)
	}

	cur, _ := e.store.Get(tid)
	if cur.Status != StatusStarting {
		t.Fatalf("status = %s, want STARTING", cur.Status)
	}
	if cur.TargetStartTime == nil || !cur.TargetStartTime.After(time.Now()) {
		t.Fatal("target start time not set in the future")
	}
	if len(cur.Tables) != 3 {
		t.Fatalf("tables = %d, want 3 for 25 players 9-max", len(cur.Tables))
	}
	sizes := make(map[int]int)
	for _, tbl := range cur.Tables {
		sizes[tbl.PlayerCount()]++
	}
	if sizes[9] != 1 || sizes[8] != 2 {
		t.Fatalf("table sizes = %v, want one 9 and two 8", sizes)
	}
	for uid, p := range cur.Players {
		if p.TableID == "" || p.Seat < 0 {
			t.Fatalf("player %s unseated after start", uid)
		}
		tbl := cur.Tables[p.TableID]
		if tbl.Seats[p.Seat] != uid {
			t.Fatalf("seat map inconsistent for %s", uid)
		}
	}

	e.ExecuteShotgunStart(ctx, tid)
	cur, _ = e.store.Get(tid)
	if cur.Status != StatusRunning {
		t.Fatalf("status after shotgun = %s, want RUNNING", cur.Status)
	}
	if cur.NextLevelAt.IsZero() {
		t.Fatal("next level boundary not scheduled")
	}

	// All three tables deal concurrently.
	deadline := time.Now().Add(time.Second)
	for starter.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if starter.count() != 3 {
		t.Fatalf("table starts = %d, want 3", starter.count())
	}
}

func TestEliminationRanksIssueTopDown(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	ids := registerN(t, e, tid, 5)
	e.StartTournament(ctx, tid)
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	tableID := cur.Players[ids[0]].TableID
	err := e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		Winners:     []string{ids[0]},
		ChipChanges: map[string]int{ids[0]: 20000, ids[1]: -10000, ids[2]: -10000},
		Eliminated:  []string{ids[1], ids[2]},
	})
	if err != nil {
		t.Fatalf("complete hand: %v", err)
	}

	cur, _ = e.store.Get(tid)
	if cur.Players[ids[1]].EliminationRank != 5 {
		t.Fatalf("first bust rank = %d, want 5", cur.Players[ids[1]].EliminationRank)
	}
	if cur.Players[ids[2]].EliminationRank != 4 {
		t.Fatalf("second bust rank = %d, want 4", cur.Players[ids[2]].EliminationRank)
	}
}

func TestStatusTransitionsToHeadsUpAndCompleted(t *testing.T) {
	e, _, settler, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	ids := registerN(t, e, tid, 3)
	e.StartTournament(ctx, tid)
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	tableID := cur.Players[ids[0]].TableID

	// 3 -> 2 active: HEADS_UP.
	e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		ChipChanges: map[string]int{ids[0]: 10000, ids[2]: -10000},
		Eliminated:  []string{ids[2]},
	})
	cur, _ = e.store.Get(tid)
	if cur.Status != StatusHeadsUp {
		t.Fatalf("status = %s, want HEADS_UP", cur.Status)
	}

	// 2 -> 1 active: COMPLETED, settlement fired.
	e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		ChipChanges: map[string]int{ids[0]: 10000, ids[1]: -10000},
		Eliminated:  []string{ids[1]},
	})
	cur, _ = e.store.Get(tid)
	if cur.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", cur.Status)
	}
	if cur.ActiveCount() != 1 {
		t.Fatalf("active count at completion = %d, want 1", cur.ActiveCount())
	}

	settler.mu.Lock()
	defer settler.mu.Unlock()
	if len(settler.inputs) != 1 {
		t.Fatalf("settlement calls = %d, want 1", len(settler.inputs))
	}
	in := settler.inputs[0]
	if in.PrizePool != 300 {
		t.Fatalf("settled prize pool = %d, want 300", in.PrizePool)
	}
	if in.FinalRanking[0].UserID != ids[0] || in.FinalRanking[0].Rank != 1 {
		t.Fatalf("winner not rank 1: %+v", in.FinalRanking)
	}
}

func TestFinalRankingOrder(t *testing.T) {
	now := time.Now()
	state := State{Players: map[string]*Player{
		"a": {UserID: "a", Chips: 9000, IsActive: true},
		"b": {UserID: "b", Chips: 21000, IsActive: true},
		"c": {UserID: "c", IsActive: false, EliminationRank: 3, EliminatedAt: &now},
		"d": {UserID: "d", IsActive: false, EliminationRank: 4, EliminatedAt: &now},
	}}
	ranked := FinalRanking(state)
	want := []string{"b", "a", "c", "d"}
	for i, uid := range want {
		if ranked[i].UserID != uid {
			t.Fatalf("rank %d = %s, want %s (%+v)", i+1, ranked[i].UserID, uid, ranked)
		}
	}
}

func TestPauseResumeRestoresStatus(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	ids := registerN(t, e, tid, 3)
	e.StartTournament(ctx, tid)
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	tableID := cur.Players[ids[0]].TableID
	e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		ChipChanges: map[string]int{ids[0]: 10000, ids[2]: -10000},
		Eliminated:  []string{ids[2]},
	})

	if err := e.Pause(ctx, tid, "network incident"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	cur, _ = e.store.Get(tid)
	if cur.Status != StatusPaused {
		t.Fatalf("status = %s, want PAUSED", cur.Status)
	}

	if err := e.Resume(ctx, tid); err != nil {
		t.Fatalf("resume: %v", err)
	}
	cur, _ = e.store.Get(tid)
	if cur.Status != StatusHeadsUp {
		t.Fatalf("status after resume = %s, want HEADS_UP restored", cur.Status)
	}
}

func TestCancelOnlyBeforeStart(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	registerN(t, e, tid, 3)

	if err := e.Cancel(ctx, tid, "low turnout"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cur, _ := e.store.Get(tid)
	if cur.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cur.Status)
	}

	state2, _ := e.CreateTournament(ctx, testConfig())
	registerN(t, e, state2.TournamentID, 3)
	e.StartTournament(ctx, state2.TournamentID)
	if err := e.Cancel(ctx, state2.TournamentID, "too late"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRebuyRestoresBustedPlayer(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	ids := registerN(t, e, tid, 4)
	e.StartTournament(ctx, tid)
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	tableID := cur.Players[ids[0]].TableID
	e.CompleteHand(ctx, tid, HandResult{
		TableID:     tableID,
		ChipChanges: map[string]int{ids[0]: 10000, ids[3]: -10000},
		Eliminated:  []string{ids[3]},
	})

	if err := e.Rebuy(ctx, tid, ids[3]); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	cur, _ = e.store.Get(tid)
	p := cur.Players[ids[3]]
	if !p.IsActive || p.Chips != 10000 || p.RebuyCount != 1 {
		t.Fatalf("rebuy state wrong: %+v", p)
	}
	if cur.TotalRebuys != 1 || cur.PrizePool != 500 {
		t.Fatalf("rebuys=%d prizepool=%d, want 1/500", cur.TotalRebuys, cur.PrizePool)
	}
	// Second rebuy exceeds MaxRebuys once busted again.
	e.CompleteHand(ctx, tid, HandResult{
		TableID:     p.TableID,
		ChipChanges: map[string]int{ids[0]: 10000, ids[3]: -10000},
		Eliminated:  []string{ids[3]},
	})
	if err := e.Rebuy(ctx, tid, ids[3]); !errors.Is(err, ErrRebuyNotAllowed) {
		t.Fatalf("expected ErrRebuyNotAllowed, got %v", err)
	}
}

func TestDeferredMoveExecutesAfterHand(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	state, _ := e.CreateTournament(ctx, testConfig())
	tid := state.TournamentID
	registerN(t, e, tid, 12)
	e.StartTournament(ctx, tid)
	e.ExecuteShotgunStart(ctx, tid)

	cur, _ := e.store.Get(tid)
	var srcID, dstID string
	for id := range cur.Tables {
		if srcID == "" {
			srcID = id
		} else if dstID == "" {
			dstID = id
		}
	}
	src := cur.Tables[srcID]
	var mover string
	var fromSeat int
	for seat, uid := range src.Seats {
		if uid != "" {
			mover, fromSeat = uid, seat
			break
		}
	}
	var toSeat int = -1
	for seat, uid := range cur.Tables[dstID].Seats {
		if uid == "" {
			toSeat = seat
			break
		}
	}
	if toSeat < 0 {
		t.Fatal("no empty destination seat")
	}

	e.mu.Lock()
	e.pendingMoves[srcID] = append(e.pendingMoves[srcID], moveFor(mover, srcID, fromSeat, dstID, toSeat))
	e.mu.Unlock()

	e.CompleteHand(ctx, tid, HandResult{TableID: srcID, ChipChanges: map[string]int{}})

	cur, _ = e.store.Get(tid)
	if cur.Players[mover].TableID != dstID || cur.Players[mover].Seat != toSeat {
		t.Fatalf("deferred move not executed: %+v", cur.Players[mover])
	}
	if cur.Tables[srcID] != nil && cur.Tables[srcID].Seats[fromSeat] == mover {
		t.Fatal("mover still seated at source")
	}
}
