package entity

import (
	"fmt"

	"github.com/Hiiirsch/tictactoe/internal/apperror"
)

const (
	MarkX = "X"
	MarkO = "O"

	EmptyCell = ""
)

// WinCombos lists all 8 winning lines: 3 rows, 3 columns, 2 diagonals.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board is a 3x3 grid in row-major order. Each cell holds MarkX, MarkO
// or EmptyCell.
type Board [9]string

func NewBoard() Board {
	return Board{}
}

// Apply returns a copy of the board with mark placed at cell. The board
// is never mutated on failure.
func (that Board) Apply(mark string, cell int) (Board, error) {
	if cell < 0 || cell >= len(that) {
		return that, fmt.Errorf("%w: cell %d out of range", apperror.ErrIllegalMove, cell)
	}

	if that[cell] != EmptyCell {
		return that, fmt.Errorf("%w: cell %d is already occupied", apperror.ErrIllegalMove, cell)
	}

	that[cell] = mark

	return that, nil
}

// Evaluate - checks the board for a winner or a draw. It is pure: the
// same board always yields the same result.
func (that Board) Evaluate() (winner string, draw bool) {
	for _, combo := range WinCombos {
		a, b, c := that[combo[0]], that[combo[1]], that[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a, false
		}
	}

	for _, cell := range that {
		if cell == EmptyCell {
			return "", false
		}
	}

	return "", true
}

// OpponentOf - flips a mark: X for O, O for X.
func OpponentOf(mark string) string {
	if mark == MarkX {
		return MarkO
	}

	return MarkX
}
