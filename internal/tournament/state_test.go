package tournament

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	original := State{
		TournamentID: "t1",
		Status:       StatusRunning,
		Players: map[string]*Player{
			"u1": {UserID: "u1", Chips: 5000, TableID: "tbl-1", IsActive: true},
		},
		Tables: map[string]*TableState{
			"tbl-1": {TableID: "tbl-1", Seats: []string{"u1", "", ""}, MaxSeats: 3},
		},
		Ranking:        []string{"u1"},
		LevelStartedAt: now,
	}

	clone := original.Clone()
	clone.Players["u1"].Chips = 1
	clone.Tables["tbl-1"].Seats[0] = "intruder"
	clone.Ranking[0] = "someone-else"

	assert.Equal(t, 5000, original.Players["u1"].Chips, "player mutation leaked into original")
	assert.Equal(t, "u1", original.Tables["tbl-1"].Seats[0], "seat mutation leaked into original")
	assert.Equal(t, "u1", original.Ranking[0], "ranking mutation leaked into original")
}

func TestActiveCountExcludesBustedAndInactive(t *testing.T) {
	state := State{Players: map[string]*Player{
		"alive":   {UserID: "alive", Chips: 100, IsActive: true},
		"busted":  {UserID: "busted", Chips: 0, IsActive: true},
		"retired": {UserID: "retired", Chips: 100, IsActive: false},
	}}
	assert.Equal(t, 1, state.ActiveCount())
	require.Len(t, state.ActivePlayers(), 1)
	assert.Equal(t, "alive", state.ActivePlayers()[0].UserID)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	for _, s := range []Status{StatusRegistering, StatusStarting, StatusRunning, StatusPaused, StatusFinalTable, StatusHeadsUp} {
		assert.False(t, s.IsTerminal(), "status %s should not be terminal", s)
	}
}

func TestStoreCopiesOnGet(t *testing.T) {
	store := NewStore()
	store.Put(State{
		TournamentID: "t1",
		Status:       StatusRegistering,
		Players:      map[string]*Player{"u1": {UserID: "u1", Chips: 100}},
		Tables:       map[string]*TableState{},
	})

	got, ok := store.Get("t1")
	require.True(t, ok)
	got.Players["u1"].Chips = 999

	again, _ := store.Get("t1")
	assert.Equal(t, 100, again.Players["u1"].Chips, "Get must return isolated copies")
}
