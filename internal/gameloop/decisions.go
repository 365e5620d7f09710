package gameloop

import "pokercore/internal/cards"

// GameContext is handed to a bot's strategy at decision time. The
// loop builds it from the table's live AvailableActions plus the
// acting seat's view of the hand.
type GameContext struct {
	Actions        []string
	CallAmount     int
	MinRaise       int
	MaxRaise       int
	Stack          int
	CurrentBet     int
	Position       int
	HoleCards      []cards.Card
	CommunityCards []cards.Card
	Pot            int
	Phase          string
	BigBlind       int
	NumSeats       int
	NumActive      int
}

// Decision is a bot's chosen action.
type Decision struct {
	Action string
	Amount int
}

// BotDecider is implemented by the bot orchestrator (internal/bots) and
// injected into the Loop, avoiding an import cycle: the loop never
// imports the orchestrator package directly. IsLivebot distinguishes a
// strategy-driven bot from a table's trivial built-in heuristic actor;
// NotifyHandComplete feeds realized stacks/winnings back to bot
// sessions.
type BotDecider interface {
	IsBot(userID string) bool
	IsLivebot(userID string) bool
	Decide(userID string, ctx GameContext) Decision
	NotifyHandComplete(userID, tableID string, newStack, wonAmount int)
}

// nopDecider stands in when no orchestrator is wired: every seat is
// treated as human, so the loop always defers to prompts.
type nopDecider struct{}

func (nopDecider) IsBot(string) bool                          { return false }
func (nopDecider) IsLivebot(string) bool                      { return false }
func (nopDecider) Decide(string, GameContext) Decision        { return Decision{Action: "check"} }
func (nopDecider) NotifyHandComplete(string, string, int, int) {}
