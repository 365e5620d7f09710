package gameloop

import (
	"pokercore/internal/cards"
	"pokercore/internal/table"
)

// PlayerView is one seat's projection in a personalized table snapshot:
// only the viewer's own hole cards are populated (unless the seat's
// cards have been revealed at showdown).
type PlayerView struct {
	UserID        string       `json:"user_id"`
	DisplayName   string       `json:"display_name"`
	Seat          int          `json:"seat"`
	Stack         int          `json:"stack"`
	Bet           int          `json:"bet"`
	Status        string       `json:"status"`
	IsBot         bool         `json:"is_bot"`
	HoleCards     []cards.Card `json:"hole_cards,omitempty"`
	CardsRevealed bool         `json:"cards_revealed"`
}

// TableSnapshot is the payload of a TABLE_SNAPSHOT / TABLE_STATE_UPDATE
// event, personalized for one viewer.
type TableSnapshot struct {
	TableID         string       `json:"table_id"`
	Phase           string       `json:"phase"`
	Pot             int          `json:"pot"`
	CommunityCards  []cards.Card `json:"community_cards"`
	CurrentTurnSeat int          `json:"current_turn_seat"`
	DealerSeat      int          `json:"dealer_seat"`
	HandNumber      int          `json:"hand_number"`
	Players         []PlayerView `json:"players"`
}

// buildSnapshot projects t's state for viewerUserID: the viewer's own
// hole cards are always visible; everyone else's are hidden unless
// CardsRevealed is set (post-showdown).
func buildSnapshot(t *table.Table, viewerUserID string) TableSnapshot {
	snap := TableSnapshot{
		TableID:         t.ID,
		Phase:           string(t.Phase),
		Pot:             t.Pot,
		CommunityCards:  t.Community,
		CurrentTurnSeat: t.CurrentTurnSeat,
		DealerSeat:      t.DealerSeat,
		HandNumber:      t.HandNumber,
	}
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		view := PlayerView{
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Seat:          p.Seat,
			Stack:         p.Stack,
			Bet:           p.Bet,
			Status:        string(p.Status),
			IsBot:         p.IsBot,
			CardsRevealed: p.CardsRevealed,
		}
		if p.UserID == viewerUserID || p.CardsRevealed {
			view.HoleCards = p.Hole
		}
		snap.Players = append(snap.Players, view)
	}
	return snap
}
