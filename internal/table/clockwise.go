package table

// seatOrder6/seatOrder9 fix the visual clockwise layout for each table
// size: dealer movement and blind
// assignment always walk this order rather than raw seat-index order,
// so a 9-max table skipping some seats still rotates sensibly.
var seatOrder6 = []int{0, 1, 2, 3, 4, 5}
var seatOrder9 = []int{0, 1, 2, 3, 4, 5, 6, 7, 8}

func seatOrderFor(maxSeats int) []int {
	if maxSeats == 6 {
		return seatOrder6
	}
	return seatOrder9
}

// nextClockwise returns the next occupied seat strictly after current
// in the table's fixed clockwise order, wrapping around. occupied is
// keyed by seat index. Returns -1 if no seat is occupied.
func nextClockwise(current, maxSeats int, occupied map[int]bool) int {
	order := seatOrderFor(maxSeats)
	pos := indexOf(order, current)
	if pos < 0 {
		pos = -1
	}
	for i := 1; i <= len(order); i++ {
		candidate := order[(pos+i+len(order))%len(order)]
		if occupied[candidate] {
			return candidate
		}
	}
	return -1
}

// firstClockwise returns the first occupied seat in the table's fixed
// clockwise order, used to seat the dealer button on the table's very
// first hand.
func firstClockwise(maxSeats int, occupied map[int]bool) int {
	for _, seat := range seatOrderFor(maxSeats) {
		if occupied[seat] {
			return seat
		}
	}
	return -1
}

func indexOf(order []int, v int) int {
	for i, x := range order {
		if x == v {
			return i
		}
	}
	return -1
}
