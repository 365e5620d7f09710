// Package bots implements the livebot pool: session lifecycle plus the
// rate-limited control loop that keeps active bot count near a target.
package bots

import (
	"fmt"
	"log"
	"sync"
	"time"

	"pokercore/internal/config"
	"pokercore/internal/gameloop"
	"pokercore/internal/metrics"
	"pokercore/internal/table"
)

// Orchestrator manages every live bot session on this server instance
// and implements gameloop.BotDecider so the game loop can ask it for
// decisions without importing this package.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*Session

	targetCount int
	running     bool
	stop        chan struct{}

	spawnsThisMinute  int
	retiresThisMinute int
	lastSpawnReset    time.Time
	lastRetireReset   time.Time

	cfg     config.Config
	manager *gameloop.Manager
	loop    *gameloop.Loop

	defaultTableCfg table.Config
	nextTableNum    int
}

// New builds an orchestrator against a game manager and loop. The game
// loop must be wired with this orchestrator as its BotDecider before
// Start is called.
func New(manager *gameloop.Manager, loop *gameloop.Loop, cfg config.Config) *Orchestrator {
	now := time.Now()
	return &Orchestrator{
		sessions:        make(map[string]*Session),
		targetCount:     cfg.LivebotTargetCount,
		cfg:             cfg,
		manager:         manager,
		loop:            loop,
		lastSpawnReset:  now,
		lastRetireReset: now,
		defaultTableCfg: table.Config{
			SmallBlind: 10,
			BigBlind:   20,
			MinBuyIn:   500,
			MaxBuyIn:   4000,
			MaxSeats:   6,
		},
	}
}

// Start launches the background control loop. Safe to call once.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stop = make(chan struct{})
	o.mu.Unlock()

	go o.controlLoop()
	log.Printf("[BOT_ORCH] started, target=%d", o.targetCount)
}

// Stop halts the control loop and retires every bot.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stop)
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.sessions = make(map[string]*Session)
	o.mu.Unlock()

	for _, s := range sessions {
		o.removeBotFromTable(s)
	}
	log.Printf("[BOT_ORCH] stopped")
}

// SetTargetCount updates the desired active bot count, clamped to
// [0, 100].
func (o *Orchestrator) SetTargetCount(n int) {
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	o.mu.Lock()
	old := o.targetCount
	o.targetCount = n
	o.mu.Unlock()
	log.Printf("[BOT_ORCH] target count changed: %d -> %d", old, n)
}

// ForceRemoveAllBots is the admin kill switch: every session is evicted
// immediately and the target is reset to 0.
func (o *Orchestrator) ForceRemoveAllBots() int {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.sessions = make(map[string]*Session)
	o.targetCount = 0
	o.mu.Unlock()

	for _, s := range sessions {
		o.removeBotFromTable(s)
	}
	log.Printf("[BOT_ORCH] force removed %d bots", len(sessions))
	return len(sessions)
}

func (o *Orchestrator) activeCount() int {
	n := 0
	for _, s := range o.sessions {
		if s.isActive() {
			n++
		}
	}
	return n
}

func (o *Orchestrator) controlLoop() {
	ticker := time.NewTicker(o.cfg.BotControlLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			if !o.cfg.LivebotEnabled {
				continue
			}
			o.tick()
		}
	}
}

func (o *Orchestrator) tick() {
	o.mu.Lock()
	now := time.Now()
	if now.Sub(o.lastSpawnReset) >= time.Minute {
		o.spawnsThisMinute = 0
		o.lastSpawnReset = now
	}
	if now.Sub(o.lastRetireReset) >= time.Minute {
		o.retiresThisMinute = 0
		o.lastRetireReset = now
	}
	o.mu.Unlock()

	o.adjustBotCount()
	o.checkRestingBots()
	o.cleanupRetiredBots()

	o.mu.Lock()
	metrics.ActiveBots.Set(float64(o.activeCount()))
	o.mu.Unlock()
}

func (o *Orchestrator) adjustBotCount() {
	o.mu.Lock()
	current := o.activeCount()
	target := o.targetCount
	spawnBudget := o.cfg.BotSpawnRateLimit - o.spawnsThisMinute
	retireBudget := o.cfg.BotRetireRateLimit - o.retiresThisMinute
	o.mu.Unlock()

	if current < target {
		needed := target - current
		canSpawn := min(needed, spawnBudget)
		for i := 0; i < canSpawn; i++ {
			if o.spawnBot() {
				o.mu.Lock()
				o.spawnsThisMinute++
				o.mu.Unlock()
			}
		}
	} else if current > target {
		excess := current - target
		canRetire := min(excess, retireBudget)
		for i := 0; i < canRetire; i++ {
			if o.retireOneBot() {
				o.mu.Lock()
				o.retiresThisMinute++
				o.mu.Unlock()
			}
		}
	}
}

func min(a, b int) int {
	if b < a {
		return b
	}
	return a
}

// spawnBot creates a session, seats it at an available table (creating
// one if none has a free seat), and kicks off game start if possible.
func (o *Orchestrator) spawnBot() bool {
	s := newSession()
	s.Stack = o.defaultTableCfg.MinBuyIn + (o.defaultTableCfg.MaxBuyIn-o.defaultTableCfg.MinBuyIn)/2

	tableID, seat, t := o.findOrCreateOpenSeat()
	if t == nil {
		return false
	}
	s.TableID = tableID
	s.Seat = seat
	s.State = StateJoining

	t.Mu.Lock()
	err := t.SeatPlayer(seat, s.UserID, s.Nickname, s.Stack, true)
	if err == nil {
		err = t.SitIn(seat)
	}
	t.Mu.Unlock()
	if err != nil {
		log.Printf("[BOT_ORCH] failed to seat bot %s: %v", s.Nickname, err)
		return false
	}

	s.State = StatePlaying
	o.mu.Lock()
	o.sessions[s.BotID] = s
	o.mu.Unlock()

	log.Printf("[BOT_ORCH] spawned bot %s (%s) at %s seat %d", s.Nickname, s.Strategy.Name(), tableID, seat)
	go o.loop.TryStartGame(tableID)
	return true
}

// findOrCreateOpenSeat scans live tables for an empty seat in a table
// using the default configuration, creating a fresh table if none has
// room. The matching algorithm itself is intentionally simple: a full
// lobby/matchmaking pass is out of scope for bot seating.
func (o *Orchestrator) findOrCreateOpenSeat() (string, int, *table.Table) {
	for _, id := range o.manager.TableIDs() {
		t, ok := o.manager.GetTable(id)
		if !ok {
			continue
		}
		t.Mu.Lock()
		if t.Config != o.defaultTableCfg {
			t.Mu.Unlock()
			continue
		}
		for seat, p := range t.Seats {
			if p == nil {
				t.Mu.Unlock()
				return id, seat, t
			}
		}
		t.Mu.Unlock()
	}

	o.mu.Lock()
	o.nextTableNum++
	id := fmt.Sprintf("bot-table-%d", o.nextTableNum)
	o.mu.Unlock()

	t := o.manager.GetOrCreateTable(id, o.defaultTableCfg)
	return id, 0, t
}

// retireOneBot prefers resting bots, then idle, then marks a playing bot
// for retire-after-hand.
func (o *Orchestrator) retireOneBot() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, s := range o.sessions {
		if s.State == StateResting {
			delete(o.sessions, id)
			log.Printf("[BOT_ORCH] retired resting bot %s", s.Nickname)
			return true
		}
	}
	for id, s := range o.sessions {
		if s.State == StateIdle {
			delete(o.sessions, id)
			log.Printf("[BOT_ORCH] retired idle bot %s", s.Nickname)
			return true
		}
	}
	for _, s := range o.sessions {
		if s.State == StatePlaying && !s.RetireAfter {
			s.RetireAfter = true
			log.Printf("[BOT_ORCH] bot %s will retire after current hand", s.Nickname)
			return true
		}
	}
	return false
}

// checkRestingBots wakes sessions past their RestUntil deadline: if
// still needed they rejoin, otherwise they are retired outright.
func (o *Orchestrator) checkRestingBots() {
	now := time.Now()
	o.mu.Lock()
	var toWake []*Session
	for _, s := range o.sessions {
		if s.State == StateResting && now.After(s.RestUntil) {
			toWake = append(toWake, s)
		}
	}
	needed := o.activeCount() < o.targetCount
	o.mu.Unlock()

	for _, s := range toWake {
		if needed {
			o.rejoin(s)
		} else {
			o.mu.Lock()
			delete(o.sessions, s.BotID)
			o.mu.Unlock()
			log.Printf("[BOT_ORCH] retired rested bot %s", s.Nickname)
		}
	}
}

func (o *Orchestrator) rejoin(s *Session) {
	tableID, seat, t := o.findOrCreateOpenSeat()
	if t == nil {
		return
	}
	t.Mu.Lock()
	err := t.SeatPlayer(seat, s.UserID, s.Nickname, s.Stack, true)
	if err == nil {
		err = t.SitIn(seat)
	}
	t.Mu.Unlock()
	if err != nil {
		return
	}
	o.mu.Lock()
	s.TableID = tableID
	s.Seat = seat
	s.State = StatePlaying
	o.mu.Unlock()
	log.Printf("[BOT_ORCH] bot %s rejoined at %s seat %d", s.Nickname, tableID, seat)
	go o.loop.TryStartGame(tableID)
}

// cleanupRetiredBots removes retire-requested PLAYING bots once their
// table has returned to WAITING between hands.
func (o *Orchestrator) cleanupRetiredBots() {
	o.mu.Lock()
	var candidates []*Session
	for _, s := range o.sessions {
		if s.State == StatePlaying && s.RetireAfter {
			candidates = append(candidates, s)
		}
	}
	o.mu.Unlock()

	for _, s := range candidates {
		t, ok := o.manager.GetTable(s.TableID)
		if !ok {
			o.mu.Lock()
			delete(o.sessions, s.BotID)
			o.mu.Unlock()
			continue
		}
		t.Mu.Lock()
		waiting := t.Phase == table.PhaseWaiting
		t.Mu.Unlock()
		if !waiting {
			continue
		}
		o.removeBotFromTable(s)
		o.mu.Lock()
		delete(o.sessions, s.BotID)
		o.mu.Unlock()
		log.Printf("[BOT_ORCH] cleaned up retired bot %s", s.Nickname)
	}
}

func (o *Orchestrator) removeBotFromTable(s *Session) {
	if s.TableID == "" {
		return
	}
	t, ok := o.manager.GetTable(s.TableID)
	if !ok {
		return
	}
	t.Mu.Lock()
	_ = t.RemovePlayer(s.UserID)
	t.Mu.Unlock()
}

// IsBot satisfies gameloop.BotDecider.
func (o *Orchestrator) IsBot(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// IsLivebot is identical to IsBot here: every session this package
// manages is a strategy-driven livebot, not a trivial built-in actor.
func (o *Orchestrator) IsLivebot(userID string) bool {
	return o.IsBot(userID)
}

// Decide satisfies gameloop.BotDecider.
func (o *Orchestrator) Decide(userID string, ctx gameloop.GameContext) gameloop.Decision {
	o.mu.Lock()
	var strat Strategy
	for _, s := range o.sessions {
		if s.UserID == userID {
			strat = s.Strategy
			break
		}
	}
	o.mu.Unlock()
	if strat == nil {
		strat = NewStrategy("balanced")
	}
	return strat.Decide(ctx)
}

// NotifyHandComplete satisfies gameloop.BotDecider: it updates the
// session's stack and, on stack-zero or retire-after-hand, transitions
// the session onward.
func (o *Orchestrator) NotifyHandComplete(userID, tableID string, newStack, wonAmount int) {
	o.mu.Lock()
	var s *Session
	for _, sess := range o.sessions {
		if sess.UserID == userID && sess.TableID == tableID {
			s = sess
			break
		}
	}
	o.mu.Unlock()
	if s == nil {
		return
	}

	s.Stack = newStack

	if newStack <= 0 {
		o.removeBotFromTable(s)
		o.mu.Lock()
		s.State = StateResting
		s.RestUntil = time.Now().Add(o.cfg.BotRestDuration)
		s.TableID = ""
		s.Seat = -1
		o.mu.Unlock()
		log.Printf("[BOT_ORCH] bot %s busted, resting", s.Nickname)
		return
	}

	if s.RetireAfter {
		o.removeBotFromTable(s)
		o.mu.Lock()
		delete(o.sessions, s.BotID)
		o.mu.Unlock()
		log.Printf("[BOT_ORCH] bot %s retired after hand", s.Nickname)
	}
}
