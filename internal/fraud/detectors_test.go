package fraud

import (
	"testing"
	"time"

	"pokercore/internal/config"
)

func testThresholds() Thresholds {
	return DefaultThresholds(config.Load())
}

func TestBotDetectionFlagsMachineTiming(t *testing.T) {
	th := testThresholds()

	// 20 responses within a 30ms band from 950ms plus a fold-bot
	// action profile: both analyses fire, crossing the ban cutoff.
	times := make([]int, 20)
	for i := range times {
		times[i] = 950 + (i % 4 * 10)
	}
	counts := map[string]int{"fold": 18, "call": 2}
	verdict := RunRealtimeBotDetection("u1", times, counts, th)
	if !verdict.IsLikelyBot {
		t.Fatalf("machine profile not flagged: %+v", verdict)
	}
	if verdict.Score != th.ResponseWeight+th.ActionWeight {
		t.Fatalf("score = %d, want %d", verdict.Score, th.ResponseWeight+th.ActionWeight)
	}
	if verdict.Severity != SeverityHigh {
		t.Fatalf("severity = %s, want high", verdict.Severity)
	}

	// Timing alone stays under the cutoff: suspicious, not bannable.
	timingOnly := RunRealtimeBotDetection("u1", times, nil, th)
	if timingOnly.IsLikelyBot {
		t.Fatalf("timing-only score %d should stay under cutoff %d", timingOnly.Score, th.SuspicionCutoff)
	}
}

func TestBotDetectionIgnoresHumanTiming(t *testing.T) {
	th := testThresholds()

	// Human-looking spread: 1.2s to 14s with wide variance.
	times := []int{1200, 3400, 8000, 2100, 14000, 5600, 900, 7200, 4100, 11000,
		2600, 9300, 1800, 6500, 3900, 12500, 2200, 5100, 8800, 4600}
	verdict := RunRealtimeBotDetection("u1", times, nil, th)
	if verdict.IsLikelyBot {
		t.Fatalf("human timing flagged as bot: %+v", verdict)
	}
}

func TestBotDetectionInsufficientSample(t *testing.T) {
	th := testThresholds()
	verdict := RunRealtimeBotDetection("u1", []int{500, 500, 500}, nil, th)
	if verdict.IsLikelyBot || verdict.Score != 0 {
		t.Fatalf("short sample should not score: %+v", verdict)
	}
}

func TestActionPatternRatios(t *testing.T) {
	th := testThresholds()

	out := analyzeActionPattern(map[string]int{"fold": 18, "call": 1, "raise": 1}, th)
	if !out.Suspicious || out.FoldRatio <= th.FoldRatioMax {
		t.Fatalf("extreme fold ratio not flagged: %+v", out)
	}

	out = analyzeActionPattern(map[string]int{"fold": 6, "call": 8, "raise": 6}, th)
	if out.Suspicious {
		t.Fatalf("balanced pattern flagged: %+v", out)
	}

	out = analyzeActionPattern(map[string]int{"fold": 2, "raise": 3}, th)
	if out.Suspicious {
		t.Fatalf("under 10 actions should not be analyzed: %+v", out)
	}
}

func TestActionBufferRing(t *testing.T) {
	buf := newActionBuffer(20)
	for i := 0; i < 19; i++ {
		if full := buf.add("u1", actionSample{Action: "call", ResponseTimeMs: 1000}); full {
			t.Fatalf("buffer full at %d samples", i+1)
		}
	}
	if full := buf.add("u1", actionSample{Action: "fold", ResponseTimeMs: 1000}); !full {
		t.Fatal("buffer not full at 20 samples")
	}
	times, counts := buf.drain("u1")
	if len(times) != 20 || counts["call"] != 19 || counts["fold"] != 1 {
		t.Fatalf("drain mismatch: %d times, %v", len(times), counts)
	}
	// Drained: starts empty again.
	if full := buf.add("u1", actionSample{}); full {
		t.Fatal("buffer should be empty after drain")
	}
}

func TestChipDumpDetectsOneWayFlow(t *testing.T) {
	d := NewChipDumpDetector(testThresholds())
	now := time.Now()

	for i := 0; i < 5; i++ {
		d.RecordHand("shark", "feeder", 1000, now.Add(-time.Duration(i)*time.Minute))
	}
	flags := d.Scan(now)
	if len(flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(flags))
	}
	f := flags[0]
	if f.UserID != "shark" || f.DetectionType != DetectChipDumping {
		t.Fatalf("wrong suspect: %+v", f)
	}
	if f.Severity != SeverityHigh {
		t.Fatalf("100%% win rate should be high severity, got %s", f.Severity)
	}
}

func TestChipDumpIgnoresBalancedPlay(t *testing.T) {
	d := NewChipDumpDetector(testThresholds())
	now := time.Now()

	d.RecordHand("a", "b", 500, now)
	d.RecordHand("b", "a", 700, now)
	d.RecordHand("a", "b", 300, now)
	d.RecordHand("b", "a", 200, now)
	if flags := d.Scan(now); len(flags) != 0 {
		t.Fatalf("balanced play flagged: %+v", flags)
	}
}

func TestChipDumpWindowExpiry(t *testing.T) {
	d := NewChipDumpDetector(testThresholds())
	now := time.Now()

	// All transfers older than the 1h window.
	for i := 0; i < 5; i++ {
		d.RecordHand("shark", "feeder", 1000, now.Add(-2*time.Hour))
	}
	if flags := d.Scan(now); len(flags) != 0 {
		t.Fatalf("expired transfers flagged: %+v", flags)
	}
}

func TestChipDumpBelowMinHands(t *testing.T) {
	d := NewChipDumpDetector(testThresholds())
	now := time.Now()

	d.RecordHand("shark", "feeder", 1000, now)
	d.RecordHand("shark", "feeder", 1000, now)
	if flags := d.Scan(now); len(flags) != 0 {
		t.Fatalf("two hands should not flag: %+v", flags)
	}
}

func TestSessionHeuristics(t *testing.T) {
	// Clean session.
	if _, sus := AnalyzeSession(SessionStats{UserID: "u1", HandsPlayed: 40, TotalBet: 10000, TotalWon: 10500, DurationSeconds: 3600}); sus {
		t.Fatal("normal session flagged")
	}

	// Excessive win rate + profit: two reasons, high severity.
	flag, sus := AnalyzeSession(SessionStats{UserID: "u1", HandsPlayed: 30, TotalBet: 1000, TotalWon: 5000, DurationSeconds: 3600})
	if !sus {
		t.Fatal("excessive winnings not flagged")
	}
	if flag.Severity != SeverityHigh {
		t.Fatalf("two reasons should be high severity, got %s", flag.Severity)
	}

	// Marathon session alone: medium.
	flag, sus = AnalyzeSession(SessionStats{UserID: "u1", HandsPlayed: 200, TotalBet: 50000, TotalWon: 49000, DurationSeconds: 13 * 3600})
	if !sus || flag.Severity != SeverityMedium {
		t.Fatalf("marathon session: sus=%v severity=%s", sus, flag.Severity)
	}

	// Too few hands: never analyzed.
	if _, sus := AnalyzeSession(SessionStats{UserID: "u1", HandsPlayed: 3, TotalBet: 10, TotalWon: 100}); sus {
		t.Fatal("short session flagged")
	}
}
