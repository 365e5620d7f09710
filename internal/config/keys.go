package config

import "fmt"

// LockScope identifies which part of a tournament a distributed lock
// guards. Every package that acquires tournament-scoped locks builds its
// key through the functions below so the hierarchy stays identical
// everywhere it is constructed.
type LockScope string

const (
	ScopeTournament LockScope = "tournament"
	ScopeTables     LockScope = "tables"
	ScopeTable      LockScope = "table"
	ScopePlayer     LockScope = "player"
	ScopeRanking    LockScope = "ranking"
	ScopeBlind      LockScope = "blind"
)

// TournamentLockKey returns lock:tournament:{id}.
func TournamentLockKey(tournamentID string) string {
	return fmt.Sprintf("lock:tournament:%s", tournamentID)
}

// ScopedLockKey returns lock:tournament:{id}:{scope}[:{resource}].
func ScopedLockKey(tournamentID string, scope LockScope, resource string) string {
	if scope == ScopeTournament {
		return TournamentLockKey(tournamentID)
	}
	if resource == "" {
		return fmt.Sprintf("lock:tournament:%s:%s", tournamentID, scope)
	}
	return fmt.Sprintf("lock:tournament:%s:%s:%s", tournamentID, scope, resource)
}

// RankingKey is the Redis sorted set backing a tournament's live chip
// leaderboard.
func RankingKey(tournamentID string) string {
	return fmt.Sprintf("tournament:ranking:%s", tournamentID)
}

// RankingInfoKey is the hash holding nickname/table/is-active per player
// alongside the sorted set.
func RankingInfoKey(tournamentID string) string {
	return fmt.Sprintf("tournament:ranking:%s:info", tournamentID)
}

// SnapshotKey is where a tournament's latest full sealed snapshot lives.
func SnapshotKey(tournamentID string) string {
	return fmt.Sprintf("tournament:snapshot:%s:latest", tournamentID)
}

// SnapshotMetaKey holds the latest snapshot's metadata (HMAC checksum,
// type, timestamps) next to the compressed blob.
func SnapshotMetaKey(tournamentID string) string {
	return fmt.Sprintf("tournament:snapshot:%s:latest:meta", tournamentID)
}

// HandSnapshotKey is where a table's in-flight hand snapshot is stored.
func HandSnapshotKey(tournamentID, tableID string) string {
	return fmt.Sprintf("tournament:snapshot:%s:hand:%s", tournamentID, tableID)
}

// SchedulerStateKey is where a tournament's blind-schedule recovery
// state is persisted, with a 7-day TTL applied by the scheduler.
func SchedulerStateKey(tournamentID string) string {
	return fmt.Sprintf("tournament:scheduler:%s", tournamentID)
}

// TournamentEventStream is the Redis Stream every tournament event is
// appended to for consumer groups.
const TournamentEventStream = "tournament:events:all"

// ResponseTimesKey is the per-user ZSET of action response times keyed
// by millisecond timestamp, written by the fraud consumer.
func ResponseTimesKey(userID string) string {
	return fmt.Sprintf("stats:response_times:%s", userID)
}

// ActionPatternKey is the per-user HASH of action name to count.
func ActionPatternKey(userID string) string {
	return fmt.Sprintf("stats:action_pattern:%s", userID)
}

// FraudChannel names the three Pub/Sub channels the fraud consumer
// subscribes to.
func FraudChannel(name string) string {
	return fmt.Sprintf("fraud:%s", name)
}

const (
	FraudChannelHandCompleted = "hand_completed"
	FraudChannelPlayerAction  = "player_action"
	FraudChannelPlayerStats   = "player_stats"
)
