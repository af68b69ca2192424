package puzzle

import (
	"errors"
	"testing"
)

func TestMaterializeDeterministic(t *testing.T) {
	reveals, err := SelectExtraReveals(DefaultSetID, 0, 5)
	if err != nil {
		t.Fatalf("SelectExtraReveals: %v", err)
	}

	c1, s1, err := Materialize(DefaultSetID, 0, reveals)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	c2, s2, err := Materialize(DefaultSetID, 0, reveals)
	if err != nil {
		t.Fatalf("Materialize (second call): %v", err)
	}
	if c1 != c2 || s1 != s2 {
		t.Fatal("two materializations of the same description differ")
	}
}

func TestMaterializeAppliesReveals(t *testing.T) {
	reveals, err := SelectExtraReveals(DefaultSetID, 1, 4)
	if err != nil {
		t.Fatalf("SelectExtraReveals: %v", err)
	}
	bare, solution, err := Materialize(DefaultSetID, 1, nil)
	if err != nil {
		t.Fatalf("Materialize without reveals: %v", err)
	}
	revealed, _, err := Materialize(DefaultSetID, 1, reveals)
	if err != nil {
		t.Fatalf("Materialize with reveals: %v", err)
	}
	for _, cell := range reveals {
		if bare[cell.Row][cell.Col] != 0 {
			t.Errorf("reveal (%d,%d) targets a given cell", cell.Row, cell.Col)
		}
		if got, want := revealed[cell.Row][cell.Col], solution[cell.Row][cell.Col]; got != want {
			t.Errorf("reveal (%d,%d) = %d, want solution value %d", cell.Row, cell.Col, got, want)
		}
	}
}

func TestSelectExtraRevealsProperties(t *testing.T) {
	for index := 0; index < SetSize(DefaultSetID); index++ {
		clues, _, err := Materialize(DefaultSetID, index, nil)
		if err != nil {
			t.Fatalf("Materialize(%d): %v", index, err)
		}
		empty := CountEmpty(&clues)

		for _, k := range []int{0, 1, 5, 80, 200} {
			cells, err := SelectExtraReveals(DefaultSetID, index, k)
			if err != nil {
				t.Fatalf("SelectExtraReveals(%d, %d): %v", index, k, err)
			}
			want := k
			if want > empty {
				want = empty
			}
			if len(cells) != want {
				t.Fatalf("index %d count %d: got %d cells, want %d", index, k, len(cells), want)
			}

			seen := make(map[Cell]bool)
			prev := -1
			for _, cell := range cells {
				if seen[cell] {
					t.Fatalf("index %d: duplicate reveal %+v", index, cell)
				}
				seen[cell] = true
				if clues[cell.Row][cell.Col] != 0 {
					t.Fatalf("index %d: reveal %+v is not an empty cell", index, cell)
				}
				opts := candidateCount(&clues, cell.Row, cell.Col)
				if opts < prev {
					t.Fatalf("index %d: reveals not sorted by option count (%d after %d)", index, opts, prev)
				}
				prev = opts
			}
		}
	}
}

func TestSelectPuzzleRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		idx, err := SelectPuzzle(DefaultSetID)
		if err != nil {
			t.Fatalf("SelectPuzzle: %v", err)
		}
		if idx < 0 || idx >= SetSize(DefaultSetID) {
			t.Fatalf("SelectPuzzle returned out-of-range index %d", idx)
		}
	}
}

func TestInvalidDataErrors(t *testing.T) {
	var dataErr *DataError

	if _, err := SelectPuzzle("no-such-set"); !errors.As(err, &dataErr) {
		t.Errorf("SelectPuzzle on unknown set: got %v, want DataError", err)
	}
	if _, _, err := Materialize(DefaultSetID, 9999, nil); !errors.As(err, &dataErr) {
		t.Errorf("Materialize with bad index: got %v, want DataError", err)
	}
	if _, _, err := Materialize(DefaultSetID, 0, []Cell{{Row: 12, Col: 0}}); !errors.As(err, &dataErr) {
		t.Errorf("Materialize with out-of-board reveal: got %v, want DataError", err)
	}
}

func TestStoredSolutionsAreConsistent(t *testing.T) {
	for _, setID := range SetIDs() {
		for index := 0; index < SetSize(setID); index++ {
			clues, solution, err := Materialize(setID, index, nil)
			if err != nil {
				t.Fatalf("Materialize(%s, %d): %v", setID, index, err)
			}
			for r := 0; r < 9; r++ {
				for c := 0; c < 9; c++ {
					if solution[r][c] == 0 {
						t.Fatalf("%s[%d]: solution has empty cell (%d,%d)", setID, index, r, c)
					}
					if clues[r][c] != 0 && clues[r][c] != solution[r][c] {
						t.Fatalf("%s[%d]: clue (%d,%d) contradicts solution", setID, index, r, c)
					}
				}
			}
			// Every solution row/col/box must hold 9 distinct digits.
			for i := 0; i < 9; i++ {
				var row, col int
				for j := 0; j < 9; j++ {
					row |= 1 << solution[i][j]
					col |= 1 << solution[j][i]
				}
				if row != 0x3FE || col != 0x3FE {
					t.Fatalf("%s[%d]: row/col %d is not a permutation", setID, index, i)
				}
			}
		}
	}
}
