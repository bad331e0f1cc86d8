package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Size is the width and height of the board.
const Size = 7

// winLength is the number of contiguous stones needed to win.
const winLength = 4

var (
	ErrColumnFull       = errors.New("column is full")
	ErrInvalidColumn    = errors.New("column out of range")
	ErrInvalidDirection = errors.New("direction must be left or right")
)

// Color is the content of a single cell.
type Color string

const (
	Empty  Color = ""
	Red    Color = "red"
	Yellow Color = "yellow"
)

// Valid reports whether c is one of the two player colors.
func (c Color) Valid() bool {
	return c == Red || c == Yellow
}

// Opponent returns the other player color.
func (c Color) Opponent() Color {
	if c == Red {
		return Yellow
	}
	return Red
}

// Direction is a quarter-turn rotation direction.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection validates a rotation direction coming from a request.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Left, Right:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Board is a 7x7 grid. Row 0 is the top, row Size-1 the bottom; gravity
// pulls stones toward the bottom row.
type Board [Size][Size]Color

// New returns an empty board.
func New() Board {
	return Board{}
}

// Place drops a stone of color c into column col and returns the row it
// landed on.
func (b *Board) Place(col int, c Color) (int, error) {
	if col < 0 || col >= Size {
		return -1, fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	for row := Size - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			b[row][col] = c
			return row, nil
		}
	}
	return -1, ErrColumnFull
}

// lines are the four axes through a cell: horizontal, vertical and the
// two diagonals.
var lines = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// CheckWin reports whether a line of at least four stones of color c passes
// through (row, col).
func (b Board) CheckWin(row, col int, c Color) bool {
	if !inBounds(row, col) || c == Empty || b[row][col] != c {
		return false
	}
	for _, d := range lines {
		count := 1
		for r, k := row+d[0], col+d[1]; inBounds(r, k) && b[r][k] == c; r, k = r+d[0], k+d[1] {
			count++
		}
		for r, k := row-d[0], col-d[1]; inBounds(r, k) && b[r][k] == c; r, k = r-d[0], k-d[1] {
			count++
		}
		if count >= winLength {
			return true
		}
	}
	return false
}

// FindWinner scans every occupied cell in row-major order and returns the
// color of the first four-in-a-row found.
func (b Board) FindWinner() (Color, bool) {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			c := b[row][col]
			if c != Empty && b.CheckWin(row, col, c) {
				return c, true
			}
		}
	}
	return Empty, false
}

// CheckDraw reports whether the top row is full. Gravity fills lower rows
// first, so a full top row means a full board.
func (b Board) CheckDraw() bool {
	for col := 0; col < Size; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

// Rotate returns the board turned a quarter turn, counter-clockwise for Left
// and clockwise for Right. No gravity is applied.
func (b Board) Rotate(d Direction) Board {
	var out Board
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if d == Left {
				out[row][col] = b[col][Size-1-row]
			} else {
				out[row][col] = b[Size-1-col][row]
			}
		}
	}
	return out
}

// Settle lets every stone fall to the bottom of its column. Stones keep
// their bottom-to-top order within a column.
func (b Board) Settle() Board {
	var out Board
	for col := 0; col < Size; col++ {
		dst := Size - 1
		for row := Size - 1; row >= 0; row-- {
			if b[row][col] != Empty {
				out[dst][col] = b[row][col]
				dst--
			}
		}
	}
	return out
}

// String renders the board as rows of '.', 'R' and 'Y'.
func (b Board) String() string {
	var sb strings.Builder
	for row := range b {
		for col := range b[row] {
			switch b[row][col] {
			case Red:
				sb.WriteByte('R')
			case Yellow:
				sb.WriteByte('Y')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// MarshalJSON encodes the board as a 7x7 array with null for empty cells.
func (b Board) MarshalJSON() ([]byte, error) {
	rows := make([][]*string, Size)
	for row := range b {
		rows[row] = make([]*string, Size)
		for col := range b[row] {
			if c := b[row][col]; c != Empty {
				s := string(c)
				rows[row][col] = &s
			}
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != Size {
		return fmt.Errorf("board: expected %d rows, got %d", Size, len(rows))
	}
	var out Board
	for row := range rows {
		if len(rows[row]) != Size {
			return fmt.Errorf("board: row %d has %d cells", row, len(rows[row]))
		}
		for col, cell := range rows[row] {
			if cell == nil {
				continue
			}
			c := Color(*cell)
			if !c.Valid() {
				return fmt.Errorf("board: invalid cell %q at (%d,%d)", *cell, row, col)
			}
			out[row][col] = c
		}
	}
	*b = out
	return nil
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}
