// Package tournament implements the distributed-lock coordinated
// tournament engine covering registration, shotgun start, hand
// completion, blind progression, table balancing, crash recovery, and
// settlement hand-off. State values are immutable by convention; every
// mutation clones, modifies, and swaps under the tournament lock.
package tournament

import "errors"

var (
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrRegistrationClosed    = errors.New("tournament is not accepting registrations")
	ErrTournamentFull        = errors.New("tournament is full")
	ErrDuplicateRegistration = errors.New("already registered for this tournament")
	ErrNotEnoughPlayers      = errors.New("not enough players to start tournament")
	ErrAlreadyStarted        = errors.New("tournament has already started")
	ErrNotRunning            = errors.New("tournament is not running")
	ErrNotPaused             = errors.New("tournament is not paused")
	ErrInvalidBlindLevel     = errors.New("invalid blind level")
	ErrInvalidConfig         = errors.New("invalid tournament configuration")
	ErrRebuyNotAllowed       = errors.New("rebuy not allowed")
)

// ErrorCode maps a sentinel error to its stable wire code for the WS
// ERROR envelope.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRegistrationClosed):
		return "REGISTRATION_CLOSED"
	case errors.Is(err, ErrTournamentFull):
		return "TOURNAMENT_FULL"
	case errors.Is(err, ErrDuplicateRegistration):
		return "DUPLICATE_REGISTRATION"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, ErrTournamentNotFound):
		return "TOURNAMENT_NOT_FOUND"
	default:
		return "TOURNAMENT_ERROR"
	}
}
