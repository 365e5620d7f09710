package rules

import (
	"encoding/json"
	"fmt"

	"pokercore/internal/cards"
)

// wireSnapshot mirrors Snapshot for JSON purposes, exposing the
// otherwise-private remaining deck so a recovered snapshot can keep
// dealing from where it left off.
type wireSnapshot struct {
	Seats             []Seat       `json:"seats"`
	Board             []cards.Card `json:"board"`
	Deck              []cards.Card `json:"deck"`
	Round             Round        `json:"round"`
	CurrentBet        int          `json:"current_bet"`
	MinRaiseIncrement int          `json:"min_raise_increment"`
	Actor             int          `json:"actor"`
	SmallBlind        int          `json:"small_blind"`
	BigBlind          int          `json:"big_blind"`
	Ante              int          `json:"ante"`
}

// Serialize encodes the snapshot to canonical JSON. The caller (see
// internal/snapshot) is responsible for sealing the bytes with an
// integrity HMAC before persisting them; this adapter never signs its
// own output.
func (s Snapshot) Serialize() ([]byte, error) {
	w := wireSnapshot{
		Seats:             s.Seats,
		Board:             s.Board,
		Deck:              s.deck,
		Round:             s.Round,
		CurrentBet:        s.CurrentBet,
		MinRaiseIncrement: s.MinRaiseIncrement,
		Actor:             s.Actor,
		SmallBlind:        s.SmallBlind,
		BigBlind:          s.BigBlind,
		Ante:              s.Ante,
	}
	return json.Marshal(w)
}

// Deserialize rebuilds a snapshot from bytes produced by Serialize.
// Callers must verify the bytes' integrity seal before calling this —
// the adapter performs no authentication of its own.
func Deserialize(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("rules: deserialize snapshot: %w", err)
	}
	return Snapshot{
		Seats:             w.Seats,
		Board:             w.Board,
		deck:              w.Deck,
		Round:             w.Round,
		CurrentBet:        w.CurrentBet,
		MinRaiseIncrement: w.MinRaiseIncrement,
		Actor:             w.Actor,
		SmallBlind:        w.SmallBlind,
		BigBlind:          w.BigBlind,
		Ante:              w.Ante,
	}, nil
}
