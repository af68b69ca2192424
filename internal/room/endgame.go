package room

import "github.com/duelgrid/duelgrid/internal/models"

// Verdict is the arbiter's decision for one evaluation. A zero Verdict
// means the match continues.
type Verdict struct {
	Ended    bool
	WinnerID string // empty on a draw
	Reason   models.EndReason
}

// EvaluateEndConditions inspects the player set after a progress or heart
// push. Completion beats elimination; mutual elimination is a draw.
// Pure: callers apply the verdict through the guarded terminal write.
func EvaluateEndConditions(players []models.Player) Verdict {
	for _, p := range players {
		if p.Completed {
			return Verdict{Ended: true, WinnerID: p.ID, Reason: models.EndReasonCompletion}
		}
	}

	alive := make([]models.Player, 0, len(players))
	for _, p := range players {
		if !p.Eliminated() {
			alive = append(alive, p)
		}
	}
	switch {
	case len(alive) == 0:
		return Verdict{Ended: true, Reason: models.EndReasonAllEliminated}
	case len(alive) == 1 && len(players) > 1:
		return Verdict{Ended: true, WinnerID: alive[0].ID, Reason: models.EndReasonOpponentEliminated}
	}
	return Verdict{}
}

// EvaluateDeadline decides the outcome when the match window expires with
// no prior terminal condition: the strict progress maximum wins, a tie is
// a draw.
func EvaluateDeadline(players []models.Player) Verdict {
	if len(players) == 0 {
		return Verdict{Ended: true, Reason: models.EndReasonTimeUpDraw}
	}

	best := players[0]
	tie := false
	for _, p := range players[1:] {
		switch {
		case p.ProgressPercent > best.ProgressPercent:
			best = p
			tie = false
		case p.ProgressPercent == best.ProgressPercent:
			tie = true
		}
	}
	if tie {
		return Verdict{Ended: true, Reason: models.EndReasonTimeUpDraw}
	}
	return Verdict{Ended: true, WinnerID: best.ID, Reason: models.EndReasonTimeUpProgress}
}
