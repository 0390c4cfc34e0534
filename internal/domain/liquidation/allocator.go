package liquidation

import "github.com/holiman/uint256"

// Assignment hands the collateral at index Collateral to the lender entry at index Lender.
type Assignment struct {
	Lender     int
	Collateral int
}

// InsertionOrder is the ranking used when no value oracle is available.
func InsertionOrder(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Rank orders collateral indexes by value, highest first. Ties keep insertion
// order. Insertion sort: collateral lists are short.
func Rank(values []*uint256.Int) []int {
	ranked := InsertionOrder(len(values))
	for i := 1; i < len(ranked); i++ {
		cur := ranked[i]
		j := i - 1
		for j >= 0 && values[ranked[j]].Lt(values[cur]) {
			ranked[j+1] = ranked[j]
			j--
		}
		ranked[j+1] = cur
	}
	return ranked
}

// Share is floor(amount * count / total), the most items a lender may receive.
func Share(amount *uint256.Int, count int, total *uint256.Int) uint64 {
	if total == nil || total.IsZero() {
		return 0
	}
	s := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(count)))
	s.Div(s, total)
	return s.Uint64()
}

// Allocate walks lenders in contribution order and gives each its share of the
// highest-ranked items still unassigned, through one shared cursor. Items left
// over by floor rounding are not assigned.
func Allocate(ranked []int, amounts []*uint256.Int, total *uint256.Int) []Assignment {
	var out []Assignment
	cursor := 0
	for i, amount := range amounts {
		share := Share(amount, len(ranked), total)
		for n := uint64(0); n < share && cursor < len(ranked); n++ {
			out = append(out, Assignment{Lender: i, Collateral: ranked[cursor]})
			cursor++
		}
	}
	return out
}
