// Package puzzle provisions match boards from pre-enumerated puzzle sets.
//
// A match is described remotely by three scalars: a set ID, a puzzle index
// and a small set of extra-reveal positions. Materialize is a pure mapping
// from that description to the full clue grid and solution, so the room
// document never carries the 81-cell board.
package puzzle

import (
	"fmt"
	"math/rand"
	"sort"
)

// DataError reports an invalid puzzle set or index. It is fatal to room
// creation and never retried; callers fall back to the default set.
type DataError struct {
	SetID string
	Index int
}

func (e *DataError) Error() string {
	return fmt.Sprintf("puzzle data error: set %q index %d", e.SetID, e.Index)
}

// SelectPuzzle picks a uniformly random index into the named set.
func SelectPuzzle(setID string) (int, error) {
	n := SetSize(setID)
	if n == 0 {
		return 0, &DataError{SetID: setID, Index: -1}
	}
	return rand.Intn(n), nil
}

// record fetches and parses one stored puzzle.
func record(setID string, index int) (clues, solution Grid, err error) {
	recs, ok := sets[setID]
	if !ok || index < 0 || index >= len(recs) {
		return clues, solution, &DataError{SetID: setID, Index: index}
	}
	rec := recs[index]
	clues, ok = parseGrid(rec.Clues)
	if !ok {
		return clues, solution, &DataError{SetID: setID, Index: index}
	}
	solution, ok = parseGrid(rec.Solution)
	if !ok {
		return clues, solution, &DataError{SetID: setID, Index: index}
	}
	return clues, solution, nil
}

// SelectExtraReveals returns the count originally-empty cells with the
// fewest legal digits, ties broken by row-major scan order. Revealing the
// most constrained cells up front shortens and equalizes both players'
// openings.
func SelectExtraReveals(setID string, index, count int) ([]Cell, error) {
	clues, _, err := record(setID, index)
	if err != nil {
		return nil, err
	}

	type scored struct {
		cell    Cell
		options int
		order   int
	}
	var empties []scored
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if clues[r][c] != 0 {
				continue
			}
			empties = append(empties, scored{
				cell:    Cell{Row: r, Col: c},
				options: candidateCount(&clues, r, c),
				order:   r*9 + c,
			})
		}
	}
	sort.SliceStable(empties, func(i, j int) bool {
		if empties[i].options != empties[j].options {
			return empties[i].options < empties[j].options
		}
		return empties[i].order < empties[j].order
	})

	if count > len(empties) {
		count = len(empties)
	}
	if count < 0 {
		count = 0
	}
	cells := make([]Cell, count)
	for i := 0; i < count; i++ {
		cells[i] = empties[i].cell
	}
	return cells, nil
}

// Materialize reconstructs the full board for a match description: the
// stored clue/solution pair with the solution value copied into every
// reveal position. Deterministic and side-effect free, so two clients (or
// one reconnecting client) always rebuild identical boards.
func Materialize(setID string, index int, reveals []Cell) (clues, solution Grid, err error) {
	clues, solution, err = record(setID, index)
	if err != nil {
		return clues, solution, err
	}
	for _, cell := range reveals {
		if cell.Row < 0 || cell.Row > 8 || cell.Col < 0 || cell.Col > 8 {
			return clues, solution, &DataError{SetID: setID, Index: index}
		}
		clues[cell.Row][cell.Col] = solution[cell.Row][cell.Col]
	}
	return clues, solution, nil
}
