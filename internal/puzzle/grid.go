package puzzle

// Grid is a 9x9 board; zero means empty.
type Grid [9][9]uint8

// Cell identifies a board position.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// legal reports whether v can be placed at (r, c) under the row, column
// and box constraints.
func legal(g *Grid, r, c int, v uint8) bool {
	for i := 0; i < 9; i++ {
		if g[r][i] == v || g[i][c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if g[br+dr][bc+dc] == v {
				return false
			}
		}
	}
	return true
}

// candidateCount returns how many digits are legal at an empty (r, c).
func candidateCount(g *Grid, r, c int) int {
	n := 0
	for v := uint8(1); v <= 9; v++ {
		if legal(g, r, c, v) {
			n++
		}
	}
	return n
}

// CountEmpty returns the number of empty cells in g.
func CountEmpty(g *Grid) int {
	n := 0
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if g[r][c] == 0 {
				n++
			}
		}
	}
	return n
}

// parseGrid decodes an 81-char puzzle string where '1'-'9' are values and
// '.' (or '0') is empty.
func parseGrid(s string) (Grid, bool) {
	var g Grid
	if len(s) != 81 {
		return g, false
	}
	for i := 0; i < 81; i++ {
		ch := s[i]
		switch {
		case ch == '.' || ch == '0':
			// empty
		case ch >= '1' && ch <= '9':
			g[i/9][i%9] = ch - '0'
		default:
			return g, false
		}
	}
	return g, true
}
