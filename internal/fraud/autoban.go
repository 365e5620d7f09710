package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pokercore/internal/config"
	"pokercore/internal/metrics"
	"pokercore/internal/persistence"
)

// BanService is the external ban surface the gate drives; issuing the
// actual account restriction lives outside the core.
type BanService interface {
	TempBan(ctx context.Context, userID, reason string, duration time.Duration) error
}

// Notifier receives best-effort admin notifications; failures are
// logged and ignored.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// detectionWindow is how far back repeated detections count toward the
// per-type ban threshold.
const detectionWindow = 30 * 24 * time.Hour

// AutoBan gates detector flags into temporary bans: an immediate ban on
// HIGH severity (when enabled), otherwise a threshold over the user's
// recent detections of the same type.
type AutoBan struct {
	cfg      config.Config
	store    *persistence.Writer
	bans     BanService
	notifier Notifier
}

// NewAutoBan assembles the gate. bans and notifier may be nil; the gate
// then only records flags.
func NewAutoBan(cfg config.Config, store *persistence.Writer, bans BanService, notifier Notifier) *AutoBan {
	return &AutoBan{cfg: cfg, store: store, bans: bans, notifier: notifier}
}

// threshold returns the per-type repeat-detection limit from config.
func (a *AutoBan) threshold(t DetectionType) int {
	switch t {
	case DetectChipDumping:
		return a.cfg.AutoBanThresholdChipDump
	case DetectBot:
		return a.cfg.AutoBanThresholdBot
	default:
		return a.cfg.AutoBanThresholdAnomaly
	}
}

// Process records a flag and applies a temporary ban when warranted.
func (a *AutoBan) Process(ctx context.Context, flag Flag) {
	metrics.FraudDetections.WithLabelValues(string(flag.DetectionType), string(flag.Severity)).Inc()

	details, _ := json.Marshal(flag.Details)
	if _, err := a.store.RecordSuspiciousActivity(persistence.SuspiciousActivity{
		UserID:        flag.UserID,
		DetectionType: string(flag.DetectionType),
		Severity:      string(flag.Severity),
		Score:         flag.Score,
		Details:       string(details),
	}); err != nil {
		log.Printf("[AUTO_BAN] failed to record flag for %s: %v", flag.UserID, err)
	}

	if !a.cfg.AutoBanEnabled {
		return
	}

	count, err := a.store.CountRecentDetections(flag.UserID, string(flag.DetectionType), detectionWindow)
	if err != nil {
		log.Printf("[AUTO_BAN] count lookup failed for %s: %v", flag.UserID, err)
		return
	}

	var reason string
	switch {
	case flag.Severity == SeverityHigh && a.cfg.AutoBanHighSeverityNow:
		reason = fmt.Sprintf("high-severity %s (score %.0f)", flag.DetectionType, flag.Score)
	case int(count) >= a.threshold(flag.DetectionType):
		reason = fmt.Sprintf("%d %s detections in 30 days", count, flag.DetectionType)
	default:
		return
	}

	a.applyBan(ctx, flag, reason)
}

func (a *AutoBan) applyBan(ctx context.Context, flag Flag, reason string) {
	duration := time.Duration(a.cfg.AutoBanTempDurationHours) * time.Hour
	if a.bans != nil {
		if err := a.bans.TempBan(ctx, flag.UserID, reason, duration); err != nil {
			log.Printf("[AUTO_BAN] ✗ ban failed for %s: %v", flag.UserID, err)
			return
		}
	}

	a.store.WriteBanAudit(persistence.BanAuditLog{
		UserID:        flag.UserID,
		DetectionType: string(flag.DetectionType),
		Reason:        reason,
		DurationHours: a.cfg.AutoBanTempDurationHours,
	})
	metrics.AutoBans.WithLabelValues(string(flag.DetectionType)).Inc()
	log.Printf("[AUTO_BAN] ⛔ banned %s for %v: %s", flag.UserID, duration, reason)

	if a.notifier != nil {
		a.notifier.Notify(ctx, fmt.Sprintf("auto-ban: user %s banned %v (%s)", flag.UserID, duration, reason))
	}
}
