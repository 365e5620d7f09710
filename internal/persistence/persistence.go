// Package persistence holds the best-effort SQL hooks hanging off the
// core: hand-history records written after hand completion, plus the
// suspicious-activity and ban-audit tables the fraud pipeline reads and
// writes. Failures here never block or reverse game state.
package persistence

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// HandHistory is one completed hand's permanent record.
type HandHistory struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TableID        string    `gorm:"index" json:"table_id"`
	HandNumber     int       `json:"hand_number"`
	StartingStacks string    `json:"starting_stacks"` // JSON, seat -> stack
	ActionLog      string    `json:"action_log"`      // JSON array
	Winners        string    `json:"winners"`         // JSON array
	ShowdownCards  string    `json:"showdown_cards,omitempty"`
	Pot            int       `json:"pot"`
	CompletedAt    time.Time `gorm:"index" json:"completed_at"`
}

// SuspiciousActivity is one fraud flag, counted by the auto-ban gate
// over its 30-day window.
type SuspiciousActivity struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"index:idx_suspicious_user_type" json:"user_id"`
	DetectionType string    `gorm:"index:idx_suspicious_user_type" json:"detection_type"`
	Severity      string    `json:"severity"`
	Score         float64   `json:"score"`
	Details       string    `json:"details"` // JSON
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// BanAuditLog records every automatic ban decision for later review.
type BanAuditLog struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"index" json:"user_id"`
	DetectionType string    `json:"detection_type"`
	Reason        string    `json:"reason"`
	DurationHours int       `json:"duration_hours"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlayerSessionStats is the rolled-up per-session record the anomaly
// detector queries when a player has enough hands on file.
type PlayerSessionStats struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string    `gorm:"index" json:"user_id"`
	HandsPlayed int       `json:"hands_played"`
	WinRate     float64   `json:"win_rate"`
	NetProfit   int       `json:"net_profit"`
	DurationSec int       `json:"duration_sec"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Config selects the backing database.
type Config struct {
	Driver string // "mysql" or "sqlite"
	DSN    string // mysql DSN or sqlite file path
}

// Open connects and migrates the schema. The sqlite driver is the
// development default; production points Driver at mysql.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "pokercore.db"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&HandHistory{}, &SuspiciousActivity{}, &BanAuditLog{}, &PlayerSessionStats{}); err != nil {
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return db, nil
}

// Writer is the best-effort persistence facade handed to the game loop
// and fraud pipeline. A nil *Writer is safe to call; every method
// no-ops.
type Writer struct {
	db *gorm.DB
}

// NewWriter wraps a connected gorm handle.
func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

// SaveHandHistory records a completed hand; errors are logged, never
// returned to the hand path.
func (w *Writer) SaveHandHistory(record HandHistory) {
	if w == nil || w.db == nil {
		return
	}
	record.CompletedAt = time.Now()
	if err := w.db.Create(&record).Error; err != nil {
		log.Printf("[PERSISTENCE] hand history write failed for %s#%d: %v", record.TableID, record.HandNumber, err)
	}
}

// RecordSuspiciousActivity inserts a fraud flag and returns it with its
// assigned ID.
func (w *Writer) RecordSuspiciousActivity(activity SuspiciousActivity) (SuspiciousActivity, error) {
	if w == nil || w.db == nil {
		return activity, nil
	}
	activity.CreatedAt = time.Now()
	if err := w.db.Create(&activity).Error; err != nil {
		return activity, fmt.Errorf("persistence: record suspicious activity: %w", err)
	}
	return activity, nil
}

// CountRecentDetections counts a user's flags of one type within the
// window, the auto-ban gate's threshold input.
func (w *Writer) CountRecentDetections(userID, detectionType string, window time.Duration) (int64, error) {
	if w == nil || w.db == nil {
		return 0, nil
	}
	var count int64
	err := w.db.Model(&SuspiciousActivity{}).
		Where("user_id = ? AND detection_type = ? AND created_at > ?", userID, detectionType, time.Now().Add(-window)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("persistence: count detections: %w", err)
	}
	return count, nil
}

// WriteBanAudit records an applied ban; best-effort.
func (w *Writer) WriteBanAudit(entry BanAuditLog) {
	if w == nil || w.db == nil {
		return
	}
	entry.CreatedAt = time.Now()
	if err := w.db.Create(&entry).Error; err != nil {
		log.Printf("[PERSISTENCE] ban audit write failed for %s: %v", entry.UserID, err)
	}
}

// RecentSessionStats loads a user's session records inside the window,
// newest first, for the DB-backed anomaly detector.
func (w *Writer) RecentSessionStats(userID string, window time.Duration, limit int) ([]PlayerSessionStats, error) {
	if w == nil || w.db == nil {
		return nil, nil
	}
	var stats []PlayerSessionStats
	err := w.db.Where("user_id = ? AND created_at > ?", userID, time.Now().Add(-window)).
		Order("created_at DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("persistence: session stats: %w", err)
	}
	return stats, nil
}

// SaveSessionStats rolls up one finished session; best-effort.
func (w *Writer) SaveSessionStats(stats PlayerSessionStats) {
	if w == nil || w.db == nil {
		return
	}
	stats.CreatedAt = time.Now()
	if err := w.db.Create(&stats).Error; err != nil {
		log.Printf("[PERSISTENCE] session stats write failed for %s: %v", stats.UserID, err)
	}
}
