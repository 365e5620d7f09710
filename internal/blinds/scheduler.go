package blinds

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pokercore/internal/config"
	"pokercore/internal/events"
)

// BroadcastHandler fans a scheduler event out to subscribers. The
// scheduler calls it from its own goroutines; implementations must be
// safe for concurrent use.
type BroadcastHandler func(tournamentID string, env events.Envelope)

// schedulerStateTTL bounds how long orphaned recovery state lingers.
const schedulerStateTTL = 7 * 24 * time.Hour

// Scheduler drives every registered tournament's blind progression with
// one goroutine per tournament.
type Scheduler struct {
	redis     *redis.Client
	warnAt    []time.Duration
	broadcast BroadcastHandler

	mu        sync.Mutex
	schedules map[string]*Schedule
	cancels   map[string]context.CancelFunc

	driftWarn time.Duration
	onDrift   func(tournamentID string, drift time.Duration)
}

// NewScheduler builds a scheduler persisting recovery state to
// redisClient, warning at the given thresholds (longest first).
func NewScheduler(redisClient *redis.Client, warnAt []time.Duration, broadcast BroadcastHandler) *Scheduler {
	return &Scheduler{
		redis:     redisClient,
		warnAt:    warnAt,
		broadcast: broadcast,
		schedules: make(map[string]*Schedule),
		cancels:   make(map[string]context.CancelFunc),
		driftWarn: 50 * time.Millisecond,
	}
}

// SetDriftObserver registers a callback invoked with every level
// change's measured drift, used to feed the drift metrics gauge.
func (s *Scheduler) SetDriftObserver(fn func(tournamentID string, drift time.Duration)) {
	s.onDrift = fn
}

// Register starts driving a tournament's blind progression from
// startLevel with elapsed already consumed (both nonzero only during
// recovery). The per-tournament loop runs until Unregister or ctx done.
func (s *Scheduler) Register(ctx context.Context, tournamentID string, levels []BlindLevel, startLevel int, elapsed time.Duration) error {
	if len(levels) == 0 {
		return fmt.Errorf("blinds: empty structure for %s", tournamentID)
	}
	if startLevel < 0 || startLevel >= len(levels) {
		return fmt.Errorf("blinds: invalid start level %d for %s", startLevel, tournamentID)
	}

	sched := &Schedule{
		TournamentID:   tournamentID,
		Levels:         levels,
		CurrentLevel:   startLevel,
		levelStartedAt: time.Now().Add(-elapsed),
		warningsSent:   make(map[time.Duration]bool),
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if old, ok := s.cancels[tournamentID]; ok {
		old()
	}
	s.schedules[tournamentID] = sched
	s.cancels[tournamentID] = cancel
	s.mu.Unlock()

	go s.run(loopCtx, tournamentID)
	log.Printf("[BLINDS] registered tournament %s at level %d (%d levels, elapsed %v)", tournamentID, startLevel, len(levels), elapsed)
	return s.saveState(ctx, sched)
}

// Unregister stops a tournament's loop and deletes its recovery state.
func (s *Scheduler) Unregister(ctx context.Context, tournamentID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[tournamentID]; ok {
		cancel()
		delete(s.cancels, tournamentID)
	}
	delete(s.schedules, tournamentID)
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.Del(ctx, config.SchedulerStateKey(tournamentID)).Err(); err != nil {
			log.Printf("[BLINDS] failed to delete state for %s: %v", tournamentID, err)
		}
	}
}

// Pause freezes a tournament's clock; levels do not advance and no
// warnings fire until Resume.
func (s *Scheduler) Pause(tournamentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[tournamentID]
	if !ok || sched.paused {
		return false
	}
	sched.paused = true
	sched.pausedAt = time.Now()
	log.Printf("[BLINDS] paused %s", tournamentID)
	return true
}

// Resume unfreezes the clock, folding the pause into accumulated pause
// time so Remaining picks up where it left off.
func (s *Scheduler) Resume(tournamentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[tournamentID]
	if !ok || !sched.paused {
		return false
	}
	sched.accumulatedPause += time.Since(sched.pausedAt)
	sched.paused = false
	log.Printf("[BLINDS] resumed %s (total pause %v)", tournamentID, sched.accumulatedPause)
	return true
}

// Snapshot returns a read-only copy of a tournament's schedule state.
func (s *Scheduler) Snapshot(tournamentID string) (level BlindLevel, remaining time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, found := s.schedules[tournamentID]
	if !found {
		return BlindLevel{}, 0, false
	}
	current, err := sched.CurrentBlind()
	if err != nil {
		return BlindLevel{}, 0, false
	}
	return current, sched.Remaining(time.Now()), true
}

// run is the per-tournament loop: wake at the next warning threshold or
// level boundary (whichever is sooner) using the drift-corrected sleep,
// emit what is due, advance when the level expires.
func (s *Scheduler) run(ctx context.Context, tournamentID string) {
	for {
		s.mu.Lock()
		sched, ok := s.schedules[tournamentID]
		if !ok {
			s.mu.Unlock()
			return
		}
		now := time.Now()
		if sched.paused {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		remaining := sched.Remaining(now)
		target := now.Add(s.nextWakeIn(sched, remaining))
		s.mu.Unlock()

		drift := SleepUntil(ctx, target)
		if ctx.Err() != nil {
			return
		}
		if drift > s.driftWarn {
			log.Printf("[BLINDS] ⚠️  drift %v on %s exceeds %v", drift, tournamentID, s.driftWarn)
		}

		s.mu.Lock()
		sched, ok = s.schedules[tournamentID]
		if !ok {
			s.mu.Unlock()
			return
		}
		now = time.Now()
		due := sched.dueWarnings(now, s.warnAt)
		levelExpired := sched.Remaining(now) <= 0

		var changed BlindLevel
		var advanceErr error
		if levelExpired {
			changed, advanceErr = sched.advance(now)
		}
		nextLevelAt := sched.NextLevelAt(now)
		s.mu.Unlock()

		for _, th := range due {
			s.fanOut(tournamentID, events.New(events.TypeBlindIncreaseWarn, map[string]any{
				"tournament_id":     tournamentID,
				"seconds_remaining": int(th.Seconds()),
			}))
		}

		if levelExpired {
			if advanceErr != nil {
				// Final level reached: hold blinds here until the
				// tournament completes.
				log.Printf("[BLINDS] %s at final level, holding", tournamentID)
				s.holdAtFinalLevel(ctx, tournamentID)
				return
			}
			if s.onDrift != nil {
				s.onDrift(tournamentID, drift)
			}
			s.fanOut(tournamentID, events.New(events.TypeBlindChange, map[string]any{
				"tournament_id": tournamentID,
				"level":         changed.Level,
				"small_blind":   changed.SmallBlind,
				"big_blind":     changed.BigBlind,
				"ante":          changed.Ante,
				"next_level_at": nextLevelAt,
			}))
			log.Printf("[BLINDS] %s advanced to level %d (SB %d / BB %d, drift %v)", tournamentID, changed.Level, changed.SmallBlind, changed.BigBlind, drift)
			s.mu.Lock()
			if cur, ok := s.schedules[tournamentID]; ok {
				if err := s.saveState(ctx, cur); err != nil {
					log.Printf("[BLINDS] failed to persist state for %s: %v", tournamentID, err)
				}
			}
			s.mu.Unlock()
		}
	}
}

// nextWakeIn picks the shortest interval to the next interesting moment:
// a pending warning threshold or the level boundary itself.
func (s *Scheduler) nextWakeIn(sched *Schedule, remaining time.Duration) time.Duration {
	wake := remaining
	for _, th := range s.warnAt {
		if sched.warningsSent[th] {
			continue
		}
		if until := remaining - th; until > 0 && until < wake {
			wake = until
		}
	}
	if wake < 0 {
		wake = 0
	}
	return wake
}

// holdAtFinalLevel idles until unregistered so the schedule stays
// queryable after the structure is exhausted.
func (s *Scheduler) holdAtFinalLevel(ctx context.Context, tournamentID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			s.mu.Lock()
			_, ok := s.schedules[tournamentID]
			s.mu.Unlock()
			if !ok {
				return
			}
		}
	}
}

// fanOut dispatches one event to the broadcast handler in its own
// goroutine so a slow subscriber never delays the timer loop.
func (s *Scheduler) fanOut(tournamentID string, env events.Envelope) {
	if s.broadcast == nil {
		return
	}
	go s.broadcast(tournamentID, env)
}

// saveState persists the schedule for crash recovery. Caller holds s.mu
// or otherwise owns sched.
func (s *Scheduler) saveState(ctx context.Context, sched *Schedule) error {
	if s.redis == nil {
		return nil
	}
	state := persistedState{
		TournamentID:   sched.TournamentID,
		Levels:         sched.Levels,
		CurrentLevel:   sched.CurrentLevel,
		ElapsedSeconds: sched.Elapsed(time.Now()).Seconds(),
		Paused:         sched.paused,
		SavedAt:        time.Now(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("blinds: marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, config.SchedulerStateKey(sched.TournamentID), data, schedulerStateTTL).Err(); err != nil {
		return fmt.Errorf("blinds: persist state: %w", err)
	}
	return nil
}

// Recover reloads a persisted schedule and re-registers it with the
// saved elapsed time, used on engine startup.
func (s *Scheduler) Recover(ctx context.Context, tournamentID string) error {
	if s.redis == nil {
		return fmt.Errorf("blinds: no redis client for recovery")
	}
	data, err := s.redis.Get(ctx, config.SchedulerStateKey(tournamentID)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("blinds: no persisted state for %s", tournamentID)
	}
	if err != nil {
		return fmt.Errorf("blinds: read state: %w", err)
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("blinds: unmarshal state: %w", err)
	}
	elapsed := time.Duration(state.ElapsedSeconds * float64(time.Second))
	return s.Register(ctx, tournamentID, state.Levels, state.CurrentLevel, elapsed)
}

// Shutdown stops every tournament loop without deleting recovery state.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}
