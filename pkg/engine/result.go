package engine

import (
	"fmt"
	"time"

	"github.com/limaJavier/timetabler/pkg/constraint"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

type Status int

const (
	StatusComplete Status = iota
	StatusInfeasible
	StatusTimedOut
)

func (status Status) String() string {
	switch status {
	case StatusComplete:
		return "complete"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("Status(%d)", int(status))
}

func (status Status) MarshalText() ([]byte, error) { return []byte(status.String()), nil }

type Stats struct {
	Nodes      int64         `json:"nodes"`
	Backtracks int64         `json:"backtracks"`
	Components int           `json:"components"`
	Moves      int           `json:"moves"`
	Improved   int           `json:"improved"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of a planning run. A Complete result is hard-constraint clean; any
// other result carries the best timetable found, explicitly labelled as such.
type Result struct {
	RunID     string
	Status    Status
	Timetable *model.Timetable
	Score     float64
	Hard      []constraint.Violation
	Soft      []constraint.Violation
	// Sessions left without an assignment
	Unassigned []model.SessionID
	// Constraints that blocked the search, most frequent first
	Blocking []string
	// Sessions forming a conflicting group, when known. A pre-check deficit is a Hall violator
	// of the matching, which is not necessarily minimal; repair.MinimalConflict shrinks it.
	Conflict []model.SessionID
	Stats    Stats
}

// Err exposes non-complete outcomes as typed errors.
func (result *Result) Err() error {
	switch result.Status {
	case StatusInfeasible:
		return appErrors.Clonef(appErrors.ErrInfeasible, "no complete schedule exists: %d session(s) unassigned, blocked by %v", len(result.Unassigned), result.Blocking)
	case StatusTimedOut:
		return appErrors.Clonef(appErrors.ErrTimedOut, "time budget exhausted with %d session(s) unassigned and %d hard violation(s)", len(result.Unassigned), len(result.Hard))
	}
	return nil
}
