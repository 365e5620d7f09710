// Package snapshot persists compressed, HMAC-sealed tournament
// snapshots to Redis for crash recovery. The checksum covers
// the raw compressed bytes; a blob whose seal does not verify is never
// decompressed or deserialized — loading it fails loudly instead.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pokercore/internal/config"
)

// Type distinguishes why a snapshot was taken.
type Type string

const (
	TypeFull       Type = "full"       // level-up and milestone events
	TypeCheckpoint Type = "checkpoint" // periodic interval
	TypeHand       Type = "hand"       // in-flight hand state per table
)

// ErrSealMismatch means a stored snapshot failed its integrity check;
// the blob was never decompressed or deserialized.
var ErrSealMismatch = errors.New("snapshot: integrity seal mismatch")

// ErrNotFound means no snapshot exists for the requested key.
var ErrNotFound = errors.New("snapshot: not found")

// Metadata travels alongside each blob: the HMAC checksum over the raw
// compressed bytes plus bookkeeping.
type Metadata struct {
	TournamentID string    `json:"tournament_id"`
	Type         Type      `json:"type"`
	Checksum     string    `json:"checksum"`
	SizeBytes    int       `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Manager seals, stores, loads, and enumerates snapshots.
type Manager struct {
	redis *redis.Client
	key   []byte
	ttl   time.Duration
}

// NewManager builds a Manager sealing with key. Snapshots expire after
// ttl (7 days if zero), matching the scheduler-state convention.
func NewManager(redisClient *redis.Client, key []byte, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{redis: redisClient, key: key, ttl: ttl}
}

// Encode serializes v to JSON, gzips it, and returns the compressed
// blob plus its HMAC-SHA256 checksum over the raw compressed bytes.
// Split out from Save so the seal/compress round trip is testable
// without Redis.
func (m *Manager) Encode(v any) ([]byte, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot: marshal: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("snapshot: compress: %w", err)
	}
	blob := buf.Bytes()
	return blob, m.checksum(blob), nil
}

// Decode verifies blob against checksum, then decompresses and
// unmarshals into out. Unknown JSON fields are ignored, so older
// snapshots load under newer schemas.
func (m *Manager) Decode(blob []byte, checksum string, out any) error {
	if !hmac.Equal([]byte(m.checksum(blob)), []byte(checksum)) {
		return ErrSealMismatch
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return nil
}

func (m *Manager) checksum(blob []byte) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write(blob)
	return hex.EncodeToString(mac.Sum(nil))
}

// Save seals v and stores it as the tournament's latest snapshot,
// overwriting any previous one.
func (m *Manager) Save(ctx context.Context, tournamentID string, typ Type, v any) error {
	blob, sum, err := m.Encode(v)
	if err != nil {
		return err
	}
	meta := Metadata{
		TournamentID: tournamentID,
		Type:         typ,
		Checksum:     sum,
		SizeBytes:    len(blob),
		CreatedAt:    time.Now(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("snapshot: marshal metadata: %w", err)
	}

	pipe := m.redis.Pipeline()
	pipe.Set(ctx, config.SnapshotKey(tournamentID), blob, m.ttl)
	pipe.Set(ctx, config.SnapshotMetaKey(tournamentID), metaJSON, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot: store: %w", err)
	}
	log.Printf("[SNAPSHOT] saved %s snapshot for %s (%d bytes)", typ, tournamentID, len(blob))
	return nil
}

// Load reads the tournament's latest snapshot into out, rejecting it if
// the seal does not verify.
func (m *Manager) Load(ctx context.Context, tournamentID string, out any) (Metadata, error) {
	blob, err := m.redis.Get(ctx, config.SnapshotKey(tournamentID)).Bytes()
	if err == redis.Nil {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot: read blob: %w", err)
	}
	metaJSON, err := m.redis.Get(ctx, config.SnapshotMetaKey(tournamentID)).Bytes()
	if err == redis.Nil {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return Metadata{}, fmt.Errorf("snapshot: unmarshal metadata: %w", err)
	}
	if err := m.Decode(blob, meta.Checksum, out); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// SaveHand stores a table's in-flight hand state; DeleteHand clears it
// when the hand completes.
func (m *Manager) SaveHand(ctx context.Context, tournamentID, tableID string, v any) error {
	blob, sum, err := m.Encode(v)
	if err != nil {
		return err
	}
	// Seal travels inline for hand snapshots; they have no separate
	// metadata record.
	payload, err := json.Marshal(map[string]any{"blob": blob, "checksum": sum})
	if err != nil {
		return fmt.Errorf("snapshot: marshal hand payload: %w", err)
	}
	if err := m.redis.Set(ctx, config.HandSnapshotKey(tournamentID, tableID), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: store hand: %w", err)
	}
	return nil
}

// LoadHand reads a table's in-flight hand snapshot into out.
func (m *Manager) LoadHand(ctx context.Context, tournamentID, tableID string, out any) error {
	payload, err := m.redis.Get(ctx, config.HandSnapshotKey(tournamentID, tableID)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("snapshot: read hand: %w", err)
	}
	var wrapper struct {
		Blob     []byte `json:"blob"`
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return fmt.Errorf("snapshot: unmarshal hand payload: %w", err)
	}
	return m.Decode(wrapper.Blob, wrapper.Checksum, out)
}

// DeleteHand removes a completed hand's snapshot.
func (m *Manager) DeleteHand(ctx context.Context, tournamentID, tableID string) error {
	return m.redis.Del(ctx, config.HandSnapshotKey(tournamentID, tableID)).Err()
}

// Delete removes a tournament's latest snapshot, used when recovery
// finds a terminal-state snapshot.
func (m *Manager) Delete(ctx context.Context, tournamentID string) error {
	return m.redis.Del(ctx, config.SnapshotKey(tournamentID), config.SnapshotMetaKey(tournamentID)).Err()
}

// ListTournamentIDs scans for every tournament with a stored snapshot,
// used by engine recovery at startup.
func (m *Manager) ListTournamentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := m.redis.Scan(ctx, 0, "tournament:snapshot:*:latest", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimSuffix(strings.TrimPrefix(key, "tournament:snapshot:"), ":latest")
		if id != "" && !strings.Contains(id, ":") {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: scan: %w", err)
	}
	return ids, nil
}
