// Package lock implements the distributed lock hierarchy: Redis SET NX
// PX acquisition with owner-verified, Lua-atomic release and renewal,
// plus multi-lock acquisition that always takes locks in sorted key
// order and releases them in reverse to avoid deadlocking against
// itself across tables or tournaments.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pokercore/internal/config"
	"pokercore/internal/metrics"
)

var (
	ErrLockTimeout     = errors.New("lock: timeout acquiring lock")
	ErrLockNotHeld     = errors.New("lock: not held by this instance")
	ErrLockAlreadyHeld = errors.New("lock: already held by another instance")
)

const (
	DefaultLockTTL        = 30 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
	DefaultRetryInterval  = 50 * time.Millisecond
	OrphanedLockAge       = 60 * time.Second
)

// Manager acquires and releases Redis-backed distributed locks on
// behalf of one process instance.
type Manager struct {
	redis          *redis.Client
	instanceID     string
	retryInterval  time.Duration
	acquireTimeout time.Duration
}

// Lock is a held distributed lock. Its zero value is not usable; obtain
// one via Manager.Acquire or Manager.AcquireScope.
type Lock struct {
	key        string
	value      string
	manager    *Manager
	ttl        time.Duration
	acquiredAt time.Time
}

// NewManager creates a lock manager bound to a shared Redis client,
// retrying acquisition every cfg.RetryIntervalMs milliseconds until
// cfg.LockAcquireTimeout.
func NewManager(redisClient *redis.Client, cfg config.Config) *Manager {
	retryInterval := time.Duration(cfg.RetryIntervalMs) * time.Millisecond
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	acquireTimeout := cfg.LockAcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Manager{
		redis:          redisClient,
		instanceID:     uuid.New().String(),
		retryInterval:  retryInterval,
		acquireTimeout: acquireTimeout,
	}
}

// Acquire acquires a lock on the raw key, retrying at a fixed interval
// until the acquire timeout. Deliberately no backoff: contended
// tournament locks are held for milliseconds, and a waiter must pick
// the lock up the moment it frees.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl == 0 {
		ttl = DefaultLockTTL
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	defer cancel()

	lockValue := fmt.Sprintf("%s:%s", m.instanceID, uuid.New().String())
	lockKey := key
	deadline := time.Now().Add(m.acquireTimeout)

	log.Printf("[LOCK] Attempting to acquire lock: %s (TTL: %v, Instance: %s)", lockKey, ttl, m.instanceID)

	for attempt := 1; ; attempt++ {
		acquired, err := m.redis.SetNX(acquireCtx, lockKey, lockValue, ttl).Result()
		if err != nil {
			log.Printf("[LOCK] Redis error on attempt %d for lock %s: %v", attempt, lockKey, err)
		} else if acquired {
			lock := &Lock{key: lockKey, value: lockValue, manager: m, ttl: ttl, acquiredAt: time.Now()}
			log.Printf("[LOCK] ✓ Acquired lock: %s (Attempt: %d)", lockKey, attempt)
			return lock, nil
		} else {
			if err := m.cleanOrphaned(acquireCtx, lockKey); err != nil {
				log.Printf("[LOCK] Failed to check orphaned lock: %v", err)
			}
		}

		if time.Now().After(deadline) {
			log.Printf("[LOCK] ✗ Failed to acquire lock within %v (%d attempts): %s", m.acquireTimeout, attempt, lockKey)
			return nil, ErrLockTimeout
		}
		select {
		case <-acquireCtx.Done():
			log.Printf("[LOCK] Context cancelled while acquiring lock: %s (Attempt: %d)", lockKey, attempt)
			return nil, ErrLockTimeout
		case <-time.After(m.retryInterval):
		}
	}
}

// AcquireScope builds the tournament lock key hierarchy from
// internal/config and acquires it: lock:tournament:{id}[:scope[:resource]].
func (m *Manager) AcquireScope(ctx context.Context, tournamentID string, scope config.LockScope, resource string, ttl time.Duration) (*Lock, error) {
	key := config.ScopedLockKey(tournamentID, scope, resource)
	start := time.Now()
	l, err := m.Acquire(ctx, key, ttl)
	metrics.LockAcquireDuration.WithLabelValues(string(scope)).Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrLockTimeout) {
		metrics.LockTimeouts.Inc()
	}
	return l, err
}

// AcquireMulti acquires every key in sorted order (to make lock
// ordering deterministic across callers and avoid deadlocks), rolling
// back anything already acquired if a later key fails.
func (m *Manager) AcquireMulti(ctx context.Context, ttl time.Duration, keys ...string) ([]*Lock, error) {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)

	held := make([]*Lock, 0, len(sorted))
	for _, key := range sorted {
		l, err := m.Acquire(ctx, key, ttl)
		if err != nil {
			releaseAll(ctx, held)
			return nil, fmt.Errorf("lock: multi-acquire failed on %s: %w", key, err)
		}
		held = append(held, l)
	}
	return held, nil
}

// ReleaseMulti releases locks acquired by AcquireMulti in reverse order.
func ReleaseMulti(ctx context.Context, locks []*Lock) {
	releaseAll(ctx, locks)
}

func releaseAll(ctx context.Context, locks []*Lock) {
	for i := len(locks) - 1; i >= 0; i-- {
		if err := locks[i].Release(ctx); err != nil {
			log.Printf("[LOCK] Failed to release %s during rollback: %v", locks[i].key, err)
		}
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release releases the lock if it is still held by this instance.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return ErrLockNotHeld
	}
	log.Printf("[LOCK] Attempting to release lock: %s", l.key)

	result, err := releaseScript.Run(ctx, l.manager.redis, []string{l.key}, l.value).Result()
	if err != nil {
		log.Printf("[LOCK] ✗ Error releasing lock %s: %v", l.key, err)
		return fmt.Errorf("lock: release: %w", err)
	}
	if result == int64(0) {
		log.Printf("[LOCK] ✗ Lock %s was not held by this instance (may have expired)", l.key)
		return ErrLockNotHeld
	}

	log.Printf("[LOCK] ✓ Released lock: %s (held for %v)", l.key, time.Since(l.acquiredAt))
	return nil
}

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Renew extends the lock's TTL if it's still held by this instance.
func (l *Lock) Renew(ctx context.Context, additionalTTL time.Duration) error {
	if l == nil {
		return ErrLockNotHeld
	}
	result, err := renewScript.Run(ctx, l.manager.redis, []string{l.key}, l.value, additionalTTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("lock: renew: %w", err)
	}
	if result == int64(0) {
		return ErrLockNotHeld
	}
	l.ttl += additionalTTL
	return nil
}

func (m *Manager) cleanOrphaned(ctx context.Context, lockKey string) error {
	idleTime, err := m.redis.ObjectIdleTime(ctx, lockKey).Result()
	if err != nil {
		return nil
	}
	if idleTime > OrphanedLockAge {
		log.Printf("[LOCK] ⚠️  Detected orphaned lock: %s (idle %v)", lockKey, idleTime)
		if _, err := m.redis.Del(ctx, lockKey).Result(); err != nil {
			return fmt.Errorf("lock: delete orphaned: %w", err)
		}
		log.Printf("[LOCK] ✓ Cleaned up orphaned lock: %s", lockKey)
	}
	return nil
}
