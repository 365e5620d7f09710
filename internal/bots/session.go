package bots

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// State is a bot session's lifecycle stage.
type State string

const (
	StateIdle    State = "IDLE"
	StateJoining State = "JOINING"
	StatePlaying State = "PLAYING"
	StateResting State = "RESTING"
	StateLeaving State = "LEAVING"
)

var nicknames = []string{
	"RiverRat", "AceHunter", "ChipLeader", "BluffMaster", "PotOdds",
	"TheNuts", "AllInAndy", "QuietFold", "StackAttack", "ShortStack",
	"ValueTown", "TiltedTom", "CheckRaise", "GrinderGail", "FelixFold",
}

// Session is one livebot's state, a value owned exclusively by the
// Orchestrator that created it.
type Session struct {
	BotID       string
	UserID      string
	Nickname    string
	Strategy    Strategy
	State       State
	TableID     string
	Seat        int
	Stack       int
	RestUntil   time.Time
	RetireAfter bool // retire once the current hand completes
}

func newSession() *Session {
	id := uuid.New().String()
	return &Session{
		BotID:    id,
		UserID:   "bot_" + id,
		Nickname: fmt.Sprintf("%s%d", nicknames[rand.Intn(len(nicknames))], rand.Intn(1000)),
		Strategy: NewStrategy(randomStrategyName()),
		State:    StateIdle,
		Seat:     -1,
	}
}

func randomStrategyName() string {
	names := Names()
	return names[rand.Intn(len(names))]
}

func (s *Session) isActive() bool {
	return s.State == StateJoining || s.State == StatePlaying
}
