// Package session holds the client-side game session: the board, the state
// machine fed by server events, move presentation timing, the opponent
// disconnect countdown, and rematch negotiation.
package session

// Board dimensions. Row 0 is the top of the grid; discs occupy the highest
// numbered free row of their column.
const (
	Rows = 6
	Cols = 7
)

// Cell is one grid position.
type Cell int8

const (
	CellEmpty   Cell = 0
	CellPlayer1 Cell = 1
	CellPlayer2 Cell = 2
)

// Board is the 6x7 grid. Always replaced wholesale from server snapshots,
// never patched cell by cell.
type Board [Rows][Cols]Cell

// BoardFromGrid converts a decoded wire grid. The grid shape is validated at
// the protocol layer before it gets here.
func BoardFromGrid(grid [][]int) Board {
	var b Board
	for r := 0; r < Rows && r < len(grid); r++ {
		for c := 0; c < Cols && c < len(grid[r]); c++ {
			b[r][c] = Cell(grid[r][c])
		}
	}
	return b
}

// Grid returns the board as a plain nested slice for JSON responses.
func (b Board) Grid() [][]int {
	grid := make([][]int, Rows)
	for r := 0; r < Rows; r++ {
		row := make([]int, Cols)
		for c := 0; c < Cols; c++ {
			row[c] = int(b[r][c])
		}
		grid[r] = row
	}
	return grid
}

// CanDrop reports whether a disc can be placed in the column.
func (b Board) CanDrop(col int) bool {
	if col < 0 || col >= Cols {
		return false
	}
	return b[0][col] == CellEmpty
}

// IsFull reports whether no column accepts another disc.
func (b Board) IsFull() bool {
	for c := 0; c < Cols; c++ {
		if b[0][c] == CellEmpty {
			return false
		}
	}
	return true
}

// DiscCount returns the number of placed discs.
func (b Board) DiscCount() int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if b[r][c] != CellEmpty {
				n++
			}
		}
	}
	return n
}
