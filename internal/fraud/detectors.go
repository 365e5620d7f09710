// Package fraud consumes the three fraud:* Pub/Sub channels and runs
// the chip-dumping, realtime-bot, and session-anomaly detectors over
// their payloads, feeding every flag through the auto-ban
// gate. Detector math is pure; only the consumer and the auto-ban
// service touch Redis and SQL.
package fraud

import (
	"fmt"
	"math"
	"sync"
	"time"

	"pokercore/internal/config"
	"pokercore/internal/metrics"
)

// DetectionType labels which analyzer raised a flag.
type DetectionType string

const (
	DetectChipDumping DetectionType = "chip_dumping"
	DetectBot         DetectionType = "bot_detection"
	DetectAnomaly     DetectionType = "anomaly_detection"
)

// Severity buckets a suspicion score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Flag is one detector's verdict on one user.
type Flag struct {
	UserID        string
	DetectionType DetectionType
	Severity      Severity
	Score         float64
	Reasons       []string
	Details       map[string]any
}

// Thresholds carries the detector tunables surfaced as configuration
// rather than constants.
type Thresholds struct {
	StdDevMs          float64 // suspicious below this
	MinResponseMs     int     // superhuman below this
	TimeRangeMs       int     // suspicious when max-min below this
	FoldRatioMax      float64
	RaiseRatioMax     float64
	MinSampleSize     int
	SuspicionCutoff   int // is-likely-bot at or above
	ResponseWeight    int // realtime response-analysis weight
	ActionWeight      int // realtime action-analysis weight
	DumpWindow        time.Duration
	DumpMinHands      int
	DumpWinRate       float64
	DumpHighWinRate   float64
}

// DefaultThresholds mirrors the documented configuration defaults.
func DefaultThresholds(cfg config.Config) Thresholds {
	return Thresholds{
		StdDevMs:        300,
		MinResponseMs:   400,
		TimeRangeMs:     1500,
		FoldRatioMax:    0.85,
		RaiseRatioMax:   0.80,
		MinSampleSize:   cfg.BotMinSampleSize,
		SuspicionCutoff: cfg.BotSuspicionThreshold,
		ResponseWeight:  50,
		ActionWeight:    30,
		DumpWindow:      time.Hour,
		DumpMinHands:    3,
		DumpWinRate:     0.9,
		DumpHighWinRate: 0.95,
	}
}

// ---- realtime bot detection ----

// actionSample is one buffered player action.
type actionSample struct {
	Action         string
	ResponseTimeMs int
	At             time.Time
}

// ResponseAnalysis is the timing half of a realtime bot verdict.
type ResponseAnalysis struct {
	SampleSize int
	AvgMs      float64
	StdDevMs   float64
	MinMs      int
	MaxMs      int
	Suspicious bool
	Reasons    []string
}

// analyzeResponseTimes flags superhuman or machine-consistent timing.
func analyzeResponseTimes(times []int, th Thresholds) ResponseAnalysis {
	out := ResponseAnalysis{SampleSize: len(times)}
	if len(times) < th.MinSampleSize {
		return out
	}

	sum := 0
	out.MinMs = times[0]
	out.MaxMs = times[0]
	for _, t := range times {
		sum += t
		if t < out.MinMs {
			out.MinMs = t
		}
		if t > out.MaxMs {
			out.MaxMs = t
		}
	}
	out.AvgMs = float64(sum) / float64(len(times))

	variance := 0.0
	for _, t := range times {
		d := float64(t) - out.AvgMs
		variance += d * d
	}
	out.StdDevMs = math.Sqrt(variance / float64(len(times)-1))

	if out.StdDevMs < th.StdDevMs {
		out.Suspicious = true
		out.Reasons = append(out.Reasons, "very_consistent_timing")
	}
	if out.MinMs < th.MinResponseMs {
		out.Suspicious = true
		out.Reasons = append(out.Reasons, "superhuman_reaction")
	}
	if out.MaxMs-out.MinMs < th.TimeRangeMs {
		out.Suspicious = true
		out.Reasons = append(out.Reasons, "narrow_time_range")
	}
	return out
}

// ActionAnalysis is the action-ratio half of a realtime bot verdict.
type ActionAnalysis struct {
	Total      int
	FoldRatio  float64
	RaiseRatio float64
	Suspicious bool
	Reasons    []string
}

func analyzeActionPattern(counts map[string]int, th Thresholds) ActionAnalysis {
	out := ActionAnalysis{}
	for _, n := range counts {
		out.Total += n
	}
	if out.Total < 10 {
		return out
	}
	out.FoldRatio = float64(counts["fold"]) / float64(out.Total)
	out.RaiseRatio = float64(counts["raise"]+counts["bet"]) / float64(out.Total)

	if out.FoldRatio > th.FoldRatioMax {
		out.Suspicious = true
		out.Reasons = append(out.Reasons, "extreme_fold_ratio")
	}
	if out.RaiseRatio > th.RaiseRatioMax {
		out.Suspicious = true
		out.Reasons = append(out.Reasons, "extreme_raise_ratio")
	}
	return out
}

// BotVerdict is the combined realtime detection result.
type BotVerdict struct {
	UserID      string
	Score       int
	IsLikelyBot bool
	Severity    Severity
	Reasons     []string
}

// RunRealtimeBotDetection weighs the two analyses into a suspicion
// score: timing dominates in the realtime variant.
func RunRealtimeBotDetection(userID string, times []int, counts map[string]int, th Thresholds) BotVerdict {
	response := analyzeResponseTimes(times, th)
	action := analyzeActionPattern(counts, th)

	v := BotVerdict{UserID: userID}
	if response.Suspicious {
		v.Score += th.ResponseWeight
		v.Reasons = append(v.Reasons, response.Reasons...)
	}
	if action.Suspicious {
		v.Score += th.ActionWeight
		v.Reasons = append(v.Reasons, action.Reasons...)
	}

	switch {
	case v.Score >= 60:
		v.Severity = SeverityHigh
	case v.Score >= 40:
		v.Severity = SeverityMedium
	default:
		v.Severity = SeverityLow
	}
	v.IsLikelyBot = v.Score >= th.SuspicionCutoff
	metrics.FraudSuspicionScore.WithLabelValues(string(DetectBot)).Observe(float64(v.Score))
	return v
}

// actionBuffer is the per-user ring of recent actions, size 20.
type actionBuffer struct {
	mu      sync.Mutex
	size    int
	samples map[string][]actionSample
}

func newActionBuffer(size int) *actionBuffer {
	return &actionBuffer{size: size, samples: make(map[string][]actionSample)}
}

// add appends a sample and reports whether the buffer is full (time to
// run detection).
func (b *actionBuffer) add(userID string, s actionSample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := append(b.samples[userID], s)
	if len(buf) > b.size {
		buf = buf[len(buf)-b.size:]
	}
	b.samples[userID] = buf
	return len(buf) >= b.size
}

// drain returns and clears the user's buffer.
func (b *actionBuffer) drain(userID string) ([]int, map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.samples[userID]
	delete(b.samples, userID)

	times := make([]int, 0, len(buf))
	counts := make(map[string]int)
	for _, s := range buf {
		times = append(times, s.ResponseTimeMs)
		counts[s.Action]++
	}
	return times, counts
}

// ---- chip dumping ----

// handTransfer records one hand's net chip flow from loser to winner.
type handTransfer struct {
	Winner string
	Loser  string
	Amount int
	At     time.Time
}

// ChipDumpDetector scans recent hands for one-way chip flow between a
// pair of players.
type ChipDumpDetector struct {
	mu        sync.Mutex
	transfers []handTransfer
	th        Thresholds
}

// NewChipDumpDetector creates a detector with the given thresholds.
func NewChipDumpDetector(th Thresholds) *ChipDumpDetector {
	return &ChipDumpDetector{th: th}
}

// RecordHand ingests one completed hand's winner/loser transfers.
func (d *ChipDumpDetector) RecordHand(winner, loser string, amount int, at time.Time) {
	if winner == "" || loser == "" || winner == loser || amount <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transfers = append(d.transfers, handTransfer{Winner: winner, Loser: loser, Amount: amount, At: at})
	d.prune(at)
}

func (d *ChipDumpDetector) prune(now time.Time) {
	cutoff := now.Add(-d.th.DumpWindow)
	kept := d.transfers[:0]
	for _, t := range d.transfers {
		if t.At.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.transfers = kept
}

// pairKey canonicalizes an unordered player pair.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// Scan looks for pairs where one side won at least DumpWinRate of at
// least DumpMinHands recent hands between them; the winner is the
// suspect receiving dumped chips.
func (d *ChipDumpDetector) Scan(now time.Time) []Flag {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(now)

	type pairStats struct {
		hands   int
		wonByA  int
		amount  int
		a, b    string
	}
	pairs := make(map[string]*pairStats)
	for _, t := range d.transfers {
		key := pairKey(t.Winner, t.Loser)
		ps, ok := pairs[key]
		if !ok {
			a, b := t.Winner, t.Loser
			if b < a {
				a, b = b, a
			}
			ps = &pairStats{a: a, b: b}
			pairs[key] = ps
		}
		ps.hands++
		ps.amount += t.Amount
		if t.Winner == ps.a {
			ps.wonByA++
		}
	}

	var flags []Flag
	for _, ps := range pairs {
		if ps.hands < d.th.DumpMinHands {
			continue
		}
		rateA := float64(ps.wonByA) / float64(ps.hands)
		var suspect, feeder string
		var rate float64
		switch {
		case rateA >= d.th.DumpWinRate:
			suspect, feeder, rate = ps.a, ps.b, rateA
		case 1-rateA >= d.th.DumpWinRate:
			suspect, feeder, rate = ps.b, ps.a, 1-rateA
		default:
			continue
		}
		severity := SeverityMedium
		if rate >= d.th.DumpHighWinRate {
			severity = SeverityHigh
		}
		flags = append(flags, Flag{
			UserID:        suspect,
			DetectionType: DetectChipDumping,
			Severity:      severity,
			Score:         rate * 100,
			Reasons:       []string{"one_way_chip_flow"},
			Details: map[string]any{
				"counterparty": feeder,
				"hands":        ps.hands,
				"win_rate":     rate,
				"total_amount": ps.amount,
			},
		})
		metrics.FraudSuspicionScore.WithLabelValues(string(DetectChipDumping)).Observe(rate * 100)
	}
	return flags
}

// ---- session anomaly ----

// SessionStats is the player_stats payload's analytical view.
type SessionStats struct {
	UserID          string
	HandsPlayed     int
	TotalBet        int
	TotalWon        int
	DurationSeconds int
}

// AnalyzeSession applies the cheap session heuristics: excessive win
// rate, excessive profit, marathon sessions.
func AnalyzeSession(s SessionStats) (Flag, bool) {
	if s.HandsPlayed < 5 {
		return Flag{}, false
	}
	winRate := 0.0
	if s.TotalBet > 0 {
		winRate = float64(s.TotalWon) / float64(s.TotalBet)
	}
	profit := s.TotalWon - s.TotalBet

	var reasons []string
	if winRate > 2.0 && s.HandsPlayed >= 10 {
		reasons = append(reasons, "excessive_win_rate")
	}
	if profit > s.TotalBet*2 && s.HandsPlayed >= 10 {
		reasons = append(reasons, "excessive_profit")
	}
	if s.DurationSeconds > 12*3600 {
		reasons = append(reasons, "excessive_session_duration")
	}
	if len(reasons) == 0 {
		return Flag{}, false
	}

	severity := SeverityMedium
	if len(reasons) >= 2 {
		severity = SeverityHigh
	}
	return Flag{
		UserID:        s.UserID,
		DetectionType: DetectAnomaly,
		Severity:      severity,
		Score:         float64(len(reasons)) * 34,
		Reasons:       reasons,
		Details: map[string]any{
			"hands_played": s.HandsPlayed,
			"win_rate":     winRate,
			"profit":       profit,
			"duration_s":   s.DurationSeconds,
		},
	}, true
}

func (f Flag) String() string {
	return fmt.Sprintf("%s/%s score=%.0f user=%s reasons=%v", f.DetectionType, f.Severity, f.Score, f.UserID, f.Reasons)
}
