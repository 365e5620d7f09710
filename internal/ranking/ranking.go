// Package ranking keeps each tournament's live chip leaderboard in a
// Redis sorted set (score = chips) plus a companion hash of player
// info, with an in-memory snapshot cache refreshed by a background
// updater so read-heavy callers never touch Redis on the hot path.
package ranking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pokercore/internal/config"
)

// Entry is one row of a ranking snapshot, in rank order.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Chips    int    `json:"chips"`
	TableID  string `json:"table_id,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Snapshot is a point-in-time view of a tournament's leaderboard plus
// its aggregates.
type Snapshot struct {
	TournamentID string    `json:"tournament_id"`
	Entries      []Entry   `json:"entries"`
	TotalPlayers int       `json:"total_players"`
	ActiveCount  int       `json:"active_count"`
	TotalChips   int       `json:"total_chips"`
	AverageStack int       `json:"average_stack"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// PlayerState is the input SyncFromState rebuilds the leaderboard from
// after a crash.
type PlayerState struct {
	UserID   string
	Nickname string
	Chips    int
	TableID  string
	IsActive bool
}

// Engine owns every active tournament's leaderboard on this instance.
type Engine struct {
	redis *redis.Client

	mu        sync.RWMutex
	active    map[string]bool
	snapshots map[string]Snapshot

	stop chan struct{}
	once sync.Once
}

// NewEngine creates a ranking engine over a shared Redis client.
func NewEngine(redisClient *redis.Client) *Engine {
	return &Engine{
		redis:     redisClient,
		active:    make(map[string]bool),
		snapshots: make(map[string]Snapshot),
		stop:      make(chan struct{}),
	}
}

// Initialize registers a tournament for snapshotting. Idempotent.
func (e *Engine) Initialize(tournamentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[tournamentID] = true
}

// UpdateChips writes a player's chip count (and optional table) into
// the sorted set and info hash.
func (e *Engine) UpdateChips(ctx context.Context, tournamentID, userID string, chips int, tableID string) error {
	pipe := e.redis.Pipeline()
	pipe.ZAdd(ctx, config.RankingKey(tournamentID), redis.Z{Score: float64(chips), Member: userID})
	fields := map[string]any{infoField(userID, "chips"): chips}
	if tableID != "" {
		fields[infoField(userID, "table")] = tableID
	}
	pipe.HSet(ctx, config.RankingInfoKey(tournamentID), fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ranking: update chips for %s: %w", userID, err)
	}
	return nil
}

// RegisterPlayer seeds a player into the leaderboard with their starting
// stack and nickname.
func (e *Engine) RegisterPlayer(ctx context.Context, tournamentID, userID, nickname string, chips int) error {
	pipe := e.redis.Pipeline()
	pipe.ZAdd(ctx, config.RankingKey(tournamentID), redis.Z{Score: float64(chips), Member: userID})
	pipe.HSet(ctx, config.RankingInfoKey(tournamentID), map[string]any{
		infoField(userID, "nickname"): nickname,
		infoField(userID, "chips"):    chips,
		infoField(userID, "active"):   "1",
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ranking: register %s: %w", userID, err)
	}
	return nil
}

// EliminatePlayer freezes a player at zero chips and marks them
// inactive; their sorted-set entry stays so final standings include them.
func (e *Engine) EliminatePlayer(ctx context.Context, tournamentID, userID string) error {
	pipe := e.redis.Pipeline()
	pipe.ZAdd(ctx, config.RankingKey(tournamentID), redis.Z{Score: 0, Member: userID})
	pipe.HSet(ctx, config.RankingInfoKey(tournamentID), map[string]any{
		infoField(userID, "chips"):  0,
		infoField(userID, "active"): "0",
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ranking: eliminate %s: %w", userID, err)
	}
	return nil
}

// GetRank returns a player's 1-based rank (rank 1 = chip leader).
func (e *Engine) GetRank(ctx context.Context, tournamentID, userID string) (int, error) {
	rank, err := e.redis.ZRevRank(ctx, config.RankingKey(tournamentID), userID).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("ranking: player %s not ranked", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("ranking: get rank: %w", err)
	}
	return int(rank) + 1, nil
}

// GetTopPlayers reads the top n entries directly from Redis.
func (e *Engine) GetTopPlayers(ctx context.Context, tournamentID string, n int) ([]Entry, error) {
	zs, err := e.redis.ZRevRangeWithScores(ctx, config.RankingKey(tournamentID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: top players: %w", err)
	}
	return e.entriesFromZ(ctx, tournamentID, zs, 1)
}

// GetNearbyPlayers returns the window of entries around userID: `above`
// players ranked better and `below` ranked worse, inclusive of the
// player themselves.
func (e *Engine) GetNearbyPlayers(ctx context.Context, tournamentID, userID string, above, below int) ([]Entry, error) {
	rank, err := e.redis.ZRevRank(ctx, config.RankingKey(tournamentID), userID).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: nearby players: %w", err)
	}
	start := rank - int64(above)
	if start < 0 {
		start = 0
	}
	zs, err := e.redis.ZRevRangeWithScores(ctx, config.RankingKey(tournamentID), start, rank+int64(below)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: nearby players: %w", err)
	}
	return e.entriesFromZ(ctx, tournamentID, zs, int(start)+1)
}

func (e *Engine) entriesFromZ(ctx context.Context, tournamentID string, zs []redis.Z, firstRank int) ([]Entry, error) {
	info, err := e.redis.HGetAll(ctx, config.RankingInfoKey(tournamentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking: read info hash: %w", err)
	}
	entries := make([]Entry, 0, len(zs))
	for i, z := range zs {
		uid, _ := z.Member.(string)
		entries = append(entries, Entry{
			Rank:     firstRank + i,
			UserID:   uid,
			Nickname: info[infoField(uid, "nickname")],
			Chips:    int(z.Score),
			TableID:  info[infoField(uid, "table")],
			IsActive: info[infoField(uid, "active")] != "0",
		})
	}
	return entries, nil
}

// GetSnapshot returns the cached snapshot for a tournament, generating
// one on demand if the updater hasn't run yet.
func (e *Engine) GetSnapshot(ctx context.Context, tournamentID string) (Snapshot, error) {
	e.mu.RLock()
	snap, ok := e.snapshots[tournamentID]
	e.mu.RUnlock()
	if ok {
		return snap, nil
	}
	return e.generateSnapshot(ctx, tournamentID)
}

func (e *Engine) generateSnapshot(ctx context.Context, tournamentID string) (Snapshot, error) {
	zs, err := e.redis.ZRevRangeWithScores(ctx, config.RankingKey(tournamentID), 0, -1).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("ranking: generate snapshot: %w", err)
	}
	entries, err := e.entriesFromZ(ctx, tournamentID, zs, 1)
	if err != nil {
		return Snapshot{}, err
	}
	snap := BuildSnapshot(tournamentID, entries)

	e.mu.Lock()
	e.snapshots[tournamentID] = snap
	e.mu.Unlock()
	return snap, nil
}

// BuildSnapshot assembles the aggregates over a ready entry list. Split
// out so the aggregation logic is testable without Redis.
func BuildSnapshot(tournamentID string, entries []Entry) Snapshot {
	snap := Snapshot{
		TournamentID: tournamentID,
		Entries:      entries,
		TotalPlayers: len(entries),
		GeneratedAt:  time.Now(),
	}
	for _, en := range entries {
		snap.TotalChips += en.Chips
		if en.IsActive {
			snap.ActiveCount++
		}
	}
	if snap.ActiveCount > 0 {
		snap.AverageStack = snap.TotalChips / snap.ActiveCount
	}
	return snap
}

// RunSnapshotUpdater regenerates every active tournament's snapshot at
// interval until Shutdown.
func (e *Engine) RunSnapshotUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.RLock()
			ids := make([]string, 0, len(e.active))
			for id := range e.active {
				ids = append(ids, id)
			}
			e.mu.RUnlock()
			for _, id := range ids {
				if _, err := e.generateSnapshot(ctx, id); err != nil {
					log.Printf("[RANKING] snapshot update failed for %s: %v", id, err)
				}
			}
		}
	}
}

// SyncFromState rebuilds the sorted set and info hash atomically from
// recovered tournament state, via a single pipeline.
func (e *Engine) SyncFromState(ctx context.Context, tournamentID string, players []PlayerState) error {
	pipe := e.redis.TxPipeline()
	pipe.Del(ctx, config.RankingKey(tournamentID), config.RankingInfoKey(tournamentID))
	for _, p := range players {
		pipe.ZAdd(ctx, config.RankingKey(tournamentID), redis.Z{Score: float64(p.Chips), Member: p.UserID})
		active := "1"
		if !p.IsActive {
			active = "0"
		}
		pipe.HSet(ctx, config.RankingInfoKey(tournamentID), map[string]any{
			infoField(p.UserID, "nickname"): p.Nickname,
			infoField(p.UserID, "chips"):    p.Chips,
			infoField(p.UserID, "table"):    p.TableID,
			infoField(p.UserID, "active"):   active,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ranking: sync from state: %w", err)
	}
	e.Initialize(tournamentID)
	log.Printf("[RANKING] synced %d players for tournament %s", len(players), tournamentID)
	return nil
}

// Cleanup removes a finished tournament's leaderboard keys and cache.
func (e *Engine) Cleanup(ctx context.Context, tournamentID string) error {
	e.mu.Lock()
	delete(e.active, tournamentID)
	delete(e.snapshots, tournamentID)
	e.mu.Unlock()
	if err := e.redis.Del(ctx, config.RankingKey(tournamentID), config.RankingInfoKey(tournamentID)).Err(); err != nil {
		return fmt.Errorf("ranking: cleanup %s: %w", tournamentID, err)
	}
	return nil
}

// Shutdown stops the snapshot updater.
func (e *Engine) Shutdown() {
	e.once.Do(func() { close(e.stop) })
}

func infoField(userID, field string) string {
	return userID + ":" + field
}
