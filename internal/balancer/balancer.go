// Package balancer computes player-move plans that keep tournament
// tables within one player of each other, break short-handed tables,
// and assemble the final table. The planner is pure: it reads
// a population snapshot and emits moves; executing them (and waiting
// out in-progress hands) is the tournament engine's job.
package balancer

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Priority orders competing plans; CRITICAL is reserved for final-table
// assembly.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// SeatedPlayer is one occupant of a table, as the planner sees it.
type SeatedPlayer struct {
	UserID string
	Seat   int
}

// TableInfo is the planner's view of one tournament table.
type TableInfo struct {
	TableID        string
	MaxSeats       int
	Players        []SeatedPlayer
	HandInProgress bool
	ButtonSeat     int
}

// Move relocates one player between tables. ExecuteAfterHand is set when
// the source table had a hand in progress at planning time; the engine
// must hold the move until that table's hand completes.
type Move struct {
	MoveID           string
	UserID           string
	FromTable        string
	FromSeat         int
	ToTable          string
	ToSeat           int
	Priority         Priority
	ExecuteAfterHand bool
}

// Plan is the full set of moves for one balancing pass.
type Plan struct {
	Moves        []Move
	Priority     Priority
	BrokenTables []string
	FinalTable   string
}

// TotalMoves reports how many relocations the plan contains.
func (p Plan) TotalMoves() int { return len(p.Moves) }

// Balancer computes plans for one tournament's table set.
type Balancer struct {
	MinPlayersPerTable int
	FinalTableSize     int
}

// New creates a planner with the given break threshold and final-table
// size (typically the tournament's players-per-table).
func New(minPlayers, finalTableSize int) *Balancer {
	return &Balancer{MinPlayersPerTable: minPlayers, FinalTableSize: finalTableSize}
}

// ComputePlan inspects tables and returns the moves needed, or an empty
// plan when populations are already within one of each other.
func (b *Balancer) ComputePlan(tables []TableInfo) Plan {
	if len(tables) <= 1 {
		return Plan{Priority: PriorityNone}
	}

	total := 0
	minCount, maxCount := -1, 0
	for _, t := range tables {
		n := len(t.Players)
		total += n
		if minCount < 0 || n < minCount {
			minCount = n
		}
		if n > maxCount {
			maxCount = n
		}
	}

	if maxCount-minCount <= 1 {
		return Plan{Priority: PriorityNone}
	}

	// Final-table assembly takes precedence over breaking short tables.
	if total <= b.FinalTableSize {
		return b.planFinalTable(tables)
	}

	if minCount < b.MinPlayersPerTable {
		return b.planTableBreak(tables)
	}

	return b.planEvenOut(tables, total)
}

// planEvenOut moves players from the fullest tables to the emptiest
// until the spread is at most one.
func (b *Balancer) planEvenOut(tables []TableInfo, total int) Plan {
	counts := make(map[string]int, len(tables))
	byID := make(map[string]*TableInfo, len(tables))
	for i := range tables {
		counts[tables[i].TableID] = len(tables[i].Players)
		byID[tables[i].TableID] = &tables[i]
	}

	ideal := idealCounts(tables, total)
	moved := make(map[string]bool)
	usedSeats := make(map[string]map[int]bool)

	var plan Plan
	for {
		surplusID, deficitID := "", ""
		surplus, deficit := 0, 0
		for id, n := range counts {
			diff := n - ideal[id]
			if diff > surplus {
				surplus, surplusID = diff, id
			}
			if -diff > deficit {
				deficit, deficitID = -diff, id
			}
		}
		if surplusID == "" || deficitID == "" {
			break
		}

		src, dst := byID[surplusID], byID[deficitID]
		mover := selectPlayerToMove(src, moved)
		if mover == nil {
			break
		}
		seat := selectDestinationSeat(dst, usedSeats[dst.TableID])
		if seat < 0 {
			break
		}
		if usedSeats[dst.TableID] == nil {
			usedSeats[dst.TableID] = make(map[int]bool)
		}
		usedSeats[dst.TableID][seat] = true
		moved[mover.UserID] = true

		plan.Moves = append(plan.Moves, Move{
			MoveID:           uuid.New().String(),
			UserID:           mover.UserID,
			FromTable:        src.TableID,
			FromSeat:         mover.Seat,
			ToTable:          dst.TableID,
			ToSeat:           seat,
			Priority:         PriorityMedium,
			ExecuteAfterHand: src.HandInProgress,
		})
		counts[surplusID]--
		counts[deficitID]++
	}

	switch spread := spreadOf(counts); {
	case len(plan.Moves) == 0:
		plan.Priority = PriorityNone
	case spread > 2:
		plan.Priority = PriorityHigh
	default:
		plan.Priority = PriorityMedium
	}
	return plan
}

// planTableBreak empties the short-handed tables into the remaining
// ones, filling the smallest first.
func (b *Balancer) planTableBreak(tables []TableInfo) Plan {
	var breaking, keeping []*TableInfo
	for i := range tables {
		if len(tables[i].Players) < b.MinPlayersPerTable && len(tables)-len(breaking) > 1 {
			breaking = append(breaking, &tables[i])
		} else {
			keeping = append(keeping, &tables[i])
		}
	}
	if len(breaking) == 0 || len(keeping) == 0 {
		return Plan{Priority: PriorityNone}
	}

	// Ascending population so the emptiest surviving table fills first.
	sort.Slice(keeping, func(i, j int) bool {
		return len(keeping[i].Players) < len(keeping[j].Players)
	})

	plan := Plan{Priority: PriorityHigh}
	usedSeats := make(map[string]map[int]bool)
	counts := make(map[string]int, len(keeping))
	for _, t := range keeping {
		counts[t.TableID] = len(t.Players)
	}

	for _, src := range breaking {
		plan.BrokenTables = append(plan.BrokenTables, src.TableID)
		for _, p := range src.Players {
			dst := smallestTable(keeping, counts)
			if dst == nil {
				break
			}
			seat := selectDestinationSeat(dst, usedSeats[dst.TableID])
			if seat < 0 {
				continue
			}
			if usedSeats[dst.TableID] == nil {
				usedSeats[dst.TableID] = make(map[int]bool)
			}
			usedSeats[dst.TableID][seat] = true
			counts[dst.TableID]++
			plan.Moves = append(plan.Moves, Move{
				MoveID:           uuid.New().String(),
				UserID:           p.UserID,
				FromTable:        src.TableID,
				FromSeat:         p.Seat,
				ToTable:          dst.TableID,
				ToSeat:           seat,
				Priority:         PriorityHigh,
				ExecuteAfterHand: src.HandInProgress,
			})
		}
	}
	return plan
}

// planFinalTable consolidates everyone onto the most populated table,
// breaking all others with CRITICAL priority.
func (b *Balancer) planFinalTable(tables []TableInfo) Plan {
	final := &tables[0]
	for i := range tables {
		if len(tables[i].Players) > len(final.Players) {
			final = &tables[i]
		}
	}

	plan := Plan{Priority: PriorityCritical, FinalTable: final.TableID}
	usedSeats := make(map[int]bool)

	for i := range tables {
		src := &tables[i]
		if src.TableID == final.TableID {
			continue
		}
		plan.BrokenTables = append(plan.BrokenTables, src.TableID)
		for _, p := range src.Players {
			seat := selectDestinationSeat(final, usedSeats)
			if seat < 0 {
				continue
			}
			usedSeats[seat] = true
			plan.Moves = append(plan.Moves, Move{
				MoveID:           uuid.New().String(),
				UserID:           p.UserID,
				FromTable:        src.TableID,
				FromSeat:         p.Seat,
				ToTable:          final.TableID,
				ToSeat:           seat,
				Priority:         PriorityCritical,
				ExecuteAfterHand: src.HandInProgress,
			})
		}
	}
	return plan
}

// selectPlayerToMove picks the occupied seat clockwise just past the
// button, the position that forfeits the least when relocated, skipping
// anyone already claimed by an earlier move this pass.
func selectPlayerToMove(t *TableInfo, moved map[string]bool) *SeatedPlayer {
	if len(t.Players) == 0 {
		return nil
	}
	sorted := append([]SeatedPlayer{}, t.Players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seat < sorted[j].Seat })

	for i := range sorted {
		if sorted[i].Seat > t.ButtonSeat && !moved[sorted[i].UserID] {
			return &sorted[i]
		}
	}
	for i := range sorted {
		if !moved[sorted[i].UserID] {
			return &sorted[i]
		}
	}
	return nil
}

// selectDestinationSeat returns the smallest empty seat index at t not
// already claimed this pass, or -1 when the table is full.
func selectDestinationSeat(t *TableInfo, claimed map[int]bool) int {
	occupied := make(map[int]bool, len(t.Players))
	for _, p := range t.Players {
		occupied[p.Seat] = true
	}
	for seat := 0; seat < t.MaxSeats; seat++ {
		if !occupied[seat] && !claimed[seat] {
			return seat
		}
	}
	return -1
}

// idealCounts splits total across tables as evenly as possible, handing
// the remainder one seat at a time to the tables that are already
// largest so the fewest players have to move.
func idealCounts(tables []TableInfo, total int) map[string]int {
	base := total / len(tables)
	remainder := total % len(tables)

	order := make([]*TableInfo, len(tables))
	for i := range tables {
		order[i] = &tables[i]
	}
	sort.Slice(order, func(i, j int) bool {
		if len(order[i].Players) != len(order[j].Players) {
			return len(order[i].Players) > len(order[j].Players)
		}
		return order[i].TableID < order[j].TableID
	})

	ideal := make(map[string]int, len(tables))
	for i, t := range order {
		n := base
		if i < remainder {
			n++
		}
		ideal[t.TableID] = n
	}
	return ideal
}

func smallestTable(tables []*TableInfo, counts map[string]int) *TableInfo {
	var best *TableInfo
	for _, t := range tables {
		if counts[t.TableID] >= t.MaxSeats {
			continue
		}
		if best == nil || counts[t.TableID] < counts[best.TableID] {
			best = t
		}
	}
	return best
}

func spreadOf(counts map[string]int) int {
	minN, maxN := -1, 0
	for _, n := range counts {
		if minN < 0 || n < minN {
			minN = n
		}
		if n > maxN {
			maxN = n
		}
	}
	if minN < 0 {
		return 0
	}
	return maxN - minN
}

// Describe renders a human-readable one-liner for logs.
func (m Move) Describe() string {
	return fmt.Sprintf("%s: %s seat %d -> %s seat %d (%s)", m.UserID, m.FromTable, m.FromSeat, m.ToTable, m.ToSeat, m.Priority)
}
