// Package blinds implements the high-precision blind-level scheduler:
// per-tournament drift-corrected timers that fire pre-warnings at
// exact thresholds, advance levels on the millisecond, survive pauses,
// and persist recovery state to Redis.
package blinds

import (
	"fmt"
	"time"
)

// BlindLevel is one step of a tournament's blind structure.
type BlindLevel struct {
	Level           int `json:"level"`
	SmallBlind      int `json:"small_blind"`
	BigBlind        int `json:"big_blind"`
	Ante            int `json:"ante"`
	DurationMinutes int `json:"duration_minutes"`
}

// Duration returns the level's length as a time.Duration.
func (l BlindLevel) Duration() time.Duration {
	return time.Duration(l.DurationMinutes) * time.Minute
}

// Schedule is one tournament's live blind progression. All fields are
// owned by the scheduler goroutine driving this tournament; readers go
// through the Scheduler's accessor methods.
type Schedule struct {
	TournamentID string
	Levels       []BlindLevel
	CurrentLevel int // index into Levels

	levelStartedAt   time.Time // monotonic-carrying
	accumulatedPause time.Duration
	pausedAt         time.Time
	paused           bool

	warningsSent map[time.Duration]bool
}

// CurrentBlind returns the active level.
func (s *Schedule) CurrentBlind() (BlindLevel, error) {
	if s.CurrentLevel < 0 || s.CurrentLevel >= len(s.Levels) {
		return BlindLevel{}, fmt.Errorf("blinds: invalid level index %d", s.CurrentLevel)
	}
	return s.Levels[s.CurrentLevel], nil
}

// NextBlind returns the level after the current one, or false when the
// structure is exhausted.
func (s *Schedule) NextBlind() (BlindLevel, bool) {
	if s.CurrentLevel+1 >= len(s.Levels) {
		return BlindLevel{}, false
	}
	return s.Levels[s.CurrentLevel+1], true
}

// Elapsed is how long the current level has been running, excluding any
// paused time.
func (s *Schedule) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.levelStartedAt) - s.accumulatedPause
	if s.paused {
		elapsed -= now.Sub(s.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// Remaining is the time left in the current level.
func (s *Schedule) Remaining(now time.Time) time.Duration {
	level, err := s.CurrentBlind()
	if err != nil {
		return 0
	}
	remaining := level.Duration() - s.Elapsed(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// NextLevelAt projects the wall-clock moment the next level begins.
func (s *Schedule) NextLevelAt(now time.Time) time.Time {
	return now.Add(s.Remaining(now))
}

// advance moves to the next level and resets per-level tracking.
func (s *Schedule) advance(now time.Time) (BlindLevel, error) {
	if s.CurrentLevel+1 >= len(s.Levels) {
		return BlindLevel{}, fmt.Errorf("blinds: no more levels after %d", s.CurrentLevel)
	}
	s.CurrentLevel++
	s.levelStartedAt = now
	s.accumulatedPause = 0
	s.warningsSent = make(map[time.Duration]bool)
	return s.Levels[s.CurrentLevel], nil
}

// dueWarnings returns the warning thresholds that should fire now and
// marks them sent. Thresholds must be given longest-first.
func (s *Schedule) dueWarnings(now time.Time, thresholds []time.Duration) []time.Duration {
	if s.paused {
		return nil
	}
	remaining := s.Remaining(now)
	var due []time.Duration
	for _, th := range thresholds {
		if remaining <= th && remaining > 0 && !s.warningsSent[th] {
			s.warningsSent[th] = true
			due = append(due, th)
		}
	}
	return due
}

// persistedState is the JSON recovery record stored in Redis.
type persistedState struct {
	TournamentID   string       `json:"tournament_id"`
	Levels         []BlindLevel `json:"levels"`
	CurrentLevel   int          `json:"current_level"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	Paused         bool         `json:"paused"`
	SavedAt        time.Time    `json:"saved_at"`
}
