// Package config centralizes environment-driven defaults and the shared
// Redis connection every other package in this module builds on top of:
// a thin typed config plus a connected client, both assembled once at
// process startup.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds every tunable named in the external interfaces and design
// notes sections: Redis connection info, lock/blind/fraud defaults, and
// the bot-suspicion score weights left as an open question upstream.
type Config struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	LockDefaultTTL     time.Duration
	LockAcquireTimeout time.Duration
	RetryIntervalMs    int

	BlindWarningThresholds []time.Duration

	LivebotEnabled         bool
	LivebotTargetCount     int
	BotControlLoopInterval time.Duration
	BotSpawnRateLimit      int
	BotRetireRateLimit     int
	BotRestDuration        time.Duration

	ResponseTimeWeight  float64
	ActionPatternWeight float64
	SessionWeight       float64

	// Game loop timing.
	PhaseTransitionDelay time.Duration
	HandResultDisplay    time.Duration
	TurnTimeout          time.Duration
	BotTurnIterationCap  int
	BotTurnRetryBackoff  time.Duration
	BotTurnRetryAttempts int

	// Bot-suspicion thresholds and auto-ban.
	BotSuspicionThreshold     int
	BotMinSampleSize          int
	AutoBanEnabled            bool
	AutoBanHighSeverityNow    bool
	AutoBanThresholdChipDump  int
	AutoBanThresholdBot       int
	AutoBanThresholdAnomaly   int
	AutoBanTempDurationHours  int

	HeartbeatInterval time.Duration
	MaxMissedPongs    int

	TableEmptyEvictAfter time.Duration
	CleanupLoopInterval  time.Duration
}

// Load builds a Config from environment variables (optionally populated
// from a .env file by the caller via godotenv), falling back to
// built-in defaults.
func Load() Config {
	return Config{
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		LockDefaultTTL:     getEnvDuration("LOCK_DEFAULT_TTL", 30*time.Second),
		LockAcquireTimeout: getEnvDuration("LOCK_ACQUIRE_TIMEOUT", 5*time.Second),
		RetryIntervalMs:    getEnvInt("LOCK_RETRY_INTERVAL_MS", 50),

		BlindWarningThresholds: []time.Duration{30 * time.Second, 10 * time.Second, 5 * time.Second},

		LivebotEnabled:         getEnvInt("LIVEBOT_ENABLED", 1) != 0,
		LivebotTargetCount:     getEnvInt("LIVEBOT_TARGET_COUNT", 0),
		BotControlLoopInterval: getEnvDuration("BOT_CONTROL_LOOP_INTERVAL", 3*time.Second),
		BotSpawnRateLimit:      getEnvInt("BOT_SPAWN_RATE_LIMIT", 5),
		BotRetireRateLimit:     getEnvInt("BOT_RETIRE_RATE_LIMIT", 5),
		BotRestDuration:        getEnvDuration("BOT_REST_DURATION", 20*time.Second),

		ResponseTimeWeight:  0.4,
		ActionPatternWeight: 0.3,
		SessionWeight:       0.3,

		PhaseTransitionDelay: getEnvDuration("PHASE_TRANSITION_DELAY", 1500*time.Millisecond),
		HandResultDisplay:    getEnvDuration("HAND_RESULT_DISPLAY", 5*time.Second),
		TurnTimeout:          getEnvDuration("TURN_TIMEOUT", 30*time.Second),
		BotTurnIterationCap:  getEnvInt("BOT_TURN_ITERATION_CAP", 50),
		BotTurnRetryBackoff:  getEnvDuration("BOT_TURN_RETRY_BACKOFF", 300*time.Millisecond),
		BotTurnRetryAttempts: getEnvInt("BOT_TURN_RETRY_ATTEMPTS", 5),

		BotSuspicionThreshold:    getEnvInt("BOT_SUSPICION_THRESHOLD", 60),
		BotMinSampleSize:         getEnvInt("BOT_MIN_SAMPLE_SIZE", 20),
		AutoBanEnabled:           true,
		AutoBanHighSeverityNow:   true,
		AutoBanThresholdChipDump: getEnvInt("AUTO_BAN_THRESHOLD_CHIP_DUMPING", 3),
		AutoBanThresholdBot:      getEnvInt("AUTO_BAN_THRESHOLD_BOT", 5),
		AutoBanThresholdAnomaly:  getEnvInt("AUTO_BAN_THRESHOLD_ANOMALY", 5),
		AutoBanTempDurationHours: getEnvInt("AUTO_BAN_TEMP_DURATION_HOURS", 24),

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 15*time.Second),
		MaxMissedPongs:    getEnvInt("MAX_MISSED_PONGS", 3),

		TableEmptyEvictAfter: getEnvDuration("TABLE_EMPTY_EVICT_AFTER", 30*time.Minute),
		CleanupLoopInterval:  getEnvDuration("CLEANUP_LOOP_INTERVAL", 60*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// NewRedisClient connects to Redis using cfg, verifying the connection
// with a short-timeout ping before returning.
func NewRedisClient(cfg Config) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort)
	log.Printf("[REDIS] Connecting to Redis at %s...", addr)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("config: connect to redis: %w", err)
	}

	log.Printf("[REDIS] ✓ Successfully connected to Redis at %s", addr)
	return client, nil
}
