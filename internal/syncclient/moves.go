package syncclient

import (
	"time"

	"github.com/duelgrid/duelgrid/internal/session"
)

func moveRecord(row, col int, value uint8, correct bool) session.Move {
	return session.Move{Row: row, Col: col, Value: value, Correct: correct, MovedAt: time.Now()}
}

// MoveResult reports what an attempted board entry did to local state.
type MoveResult struct {
	Accepted        bool
	Correct         bool
	Hearts          int
	ProgressPercent int
	Completed       bool
	Eliminated      bool
}

// ApplyMove checks one entry against the solution and applies the
// optimistic local effects: correct entries land on the grid and move the
// progress fraction, wrong ones cost a heart immediately. The server
// reconciles both on the next snapshot.
func (s *LocalState) ApplyMove(row, col int, value uint8) MoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row < 0 || row > 8 || col < 0 || col > 8 || value < 1 || value > 9 {
		return MoveResult{}
	}
	// Clue cells and already-solved cells are immutable.
	if s.Clues[row][col] != 0 {
		return MoveResult{}
	}
	if s.Grid[row][col] == s.Solution[row][col] && s.Grid[row][col] != 0 {
		return MoveResult{}
	}

	correct := s.Solution[row][col] == value
	if correct {
		s.Grid[row][col] = value
		delete(s.Notes, row*9+col)
	} else {
		s.Hearts--
		s.HeartLost = true
	}
	s.History = append(s.History, moveRecord(row, col, value, correct))

	s.ProgressPercent = s.progressLocked()
	if s.ProgressPercent == 100 {
		s.Completed = true
	}

	return MoveResult{
		Accepted:        true,
		Correct:         correct,
		Hearts:          s.Hearts,
		ProgressPercent: s.ProgressPercent,
		Completed:       s.Completed,
		Eliminated:      s.Hearts < 0,
	}
}

// progressLocked computes the completion percentage: correctly filled
// originally-empty cells over the total empty count, rounded.
func (s *LocalState) progressLocked() int {
	total := s.TotalEmpty
	if total == 0 {
		for r := 0; r < 9; r++ {
			for c := 0; c < 9; c++ {
				if s.Clues[r][c] == 0 {
					total++
				}
			}
		}
		if total == 0 {
			return 100
		}
		s.TotalEmpty = total
	}

	correct := 0
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if s.Clues[r][c] == 0 && s.Grid[r][c] != 0 && s.Grid[r][c] == s.Solution[r][c] {
				correct++
			}
		}
	}
	return (correct*100 + total/2) / total
}

// SetNote toggles a pencil mark on an empty cell.
func (s *LocalState) SetNote(row, col int, value uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row < 0 || row > 8 || col < 0 || col > 8 || s.Clues[row][col] != 0 {
		return
	}
	key := row*9 + col
	for i, v := range s.Notes[key] {
		if v == value {
			s.Notes[key] = append(s.Notes[key][:i], s.Notes[key][i+1:]...)
			return
		}
	}
	s.Notes[key] = append(s.Notes[key], value)
}
