package blinds

import (
	"context"
	"testing"
	"time"
)

func testLevels() []BlindLevel {
	return []BlindLevel{
		{Level: 1, SmallBlind: 10, BigBlind: 20, DurationMinutes: 1},
		{Level: 2, SmallBlind: 20, BigBlind: 40, DurationMinutes: 1},
		{Level: 3, SmallBlind: 30, BigBlind: 60, Ante: 5, DurationMinutes: 2},
	}
}

func scheduleAt(startedAgo time.Duration) *Schedule {
	return &Schedule{
		TournamentID:   "t1",
		Levels:         testLevels(),
		CurrentLevel:   0,
		levelStartedAt: time.Now().Add(-startedAgo),
		warningsSent:   make(map[time.Duration]bool),
	}
}

func TestRemainingAndElapsed(t *testing.T) {
	s := scheduleAt(20 * time.Second)
	now := time.Now()

	if got := s.Elapsed(now); got < 19*time.Second || got > 21*time.Second {
		t.Fatalf("elapsed = %v, want ~20s", got)
	}
	if got := s.Remaining(now); got < 39*time.Second || got > 41*time.Second {
		t.Fatalf("remaining = %v, want ~40s", got)
	}
}

func TestPauseFreezesClock(t *testing.T) {
	s := scheduleAt(20 * time.Second)
	s.paused = true
	s.pausedAt = time.Now().Add(-10 * time.Second)

	// Ten of the twenty wall-clock seconds were paused.
	now := time.Now()
	if got := s.Elapsed(now); got < 9*time.Second || got > 11*time.Second {
		t.Fatalf("elapsed during pause = %v, want ~10s", got)
	}
}

func TestDueWarningsFireOnceEach(t *testing.T) {
	thresholds := []time.Duration{30 * time.Second, 10 * time.Second, 5 * time.Second}

	s := scheduleAt(31 * time.Second) // 29s remaining
	now := time.Now()

	due := s.dueWarnings(now, thresholds)
	if len(due) != 1 || due[0] != 30*time.Second {
		t.Fatalf("expected only the 30s warning, got %v", due)
	}
	if again := s.dueWarnings(now, thresholds); len(again) != 0 {
		t.Fatalf("warning fired twice: %v", again)
	}

	s.levelStartedAt = time.Now().Add(-52 * time.Second) // 8s remaining
	due = s.dueWarnings(time.Now(), thresholds)
	if len(due) != 1 || due[0] != 10*time.Second {
		t.Fatalf("expected only the 10s warning, got %v", due)
	}
}

func TestDueWarningsSuppressedWhilePaused(t *testing.T) {
	s := scheduleAt(31 * time.Second)
	s.paused = true
	s.pausedAt = time.Now()
	if due := s.dueWarnings(time.Now(), []time.Duration{30 * time.Second}); len(due) != 0 {
		t.Fatalf("warning fired while paused: %v", due)
	}
}

func TestAdvanceResetsLevelTracking(t *testing.T) {
	s := scheduleAt(61 * time.Second)
	s.warningsSent[30*time.Second] = true
	s.accumulatedPause = 5 * time.Second

	level, err := s.advance(time.Now())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if level.Level != 2 || level.BigBlind != 40 {
		t.Fatalf("advanced to %+v, want level 2", level)
	}
	if len(s.warningsSent) != 0 || s.accumulatedPause != 0 {
		t.Fatal("per-level tracking not reset on advance")
	}
	if got := s.Remaining(time.Now()); got < 59*time.Second {
		t.Fatalf("new level remaining = %v, want ~60s", got)
	}
}

func TestAdvancePastFinalLevelFails(t *testing.T) {
	s := scheduleAt(0)
	s.CurrentLevel = len(s.Levels) - 1
	if _, err := s.advance(time.Now()); err == nil {
		t.Fatal("expected error advancing past final level")
	}
}

func TestSleepUntilPrecision(t *testing.T) {
	target := time.Now().Add(120 * time.Millisecond)
	drift := SleepUntil(context.Background(), target)
	if drift < 0 {
		drift = -drift
	}
	if drift > 50*time.Millisecond {
		t.Fatalf("drift %v exceeds 50ms budget", drift)
	}
}

func TestSleepUntilHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	SleepUntil(ctx, time.Now().Add(5*time.Second))
	if time.Since(start) > time.Second {
		t.Fatal("SleepUntil ignored cancellation")
	}
}

func TestNextWakeTargetsWarningBeforeBoundary(t *testing.T) {
	s := NewScheduler(nil, []time.Duration{30 * time.Second, 10 * time.Second, 5 * time.Second}, nil)
	sched := scheduleAt(10 * time.Second) // 50s remaining

	wake := s.nextWakeIn(sched, sched.Remaining(time.Now()))
	// Next event is the 30s warning, ~20s out, not the 50s boundary.
	if wake > 21*time.Second {
		t.Fatalf("next wake %v should target the 30s warning (~20s)", wake)
	}
}
