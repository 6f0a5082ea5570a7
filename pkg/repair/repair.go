package repair

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

type Options struct {
	// Budget used when a repair call does not give one
	TimeBudget time.Duration `koanf:"time_budget"`
	// Unpin the sessions blocking an unresolvable repair and try once more
	Escalate bool  `koanf:"escalate"`
	Seed     int64 `koanf:"seed"`
}

func DefaultOptions() Options {
	return Options{TimeBudget: 5 * time.Second, Seed: 1}
}

type Status int

const (
	// Nothing in the timetable was affected by the delta
	StatusUnchanged Status = iota
	StatusRepaired
	StatusUnresolvable
	StatusTimedOut
)

func (status Status) String() string {
	switch status {
	case StatusUnchanged:
		return "unchanged"
	case StatusRepaired:
		return "repaired"
	case StatusUnresolvable:
		return "unresolvable"
	case StatusTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("Status(%d)", int(status))
}

func (status Status) MarshalText() ([]byte, error) { return []byte(status.String()), nil }

// Change is one assignment moved by a repair.
type Change struct {
	Before model.Assignment `json:"before"`
	After  model.Assignment `json:"after"`
}

// Blocker is a session a repair could not fix and the constraints that stopped it.
type Blocker struct {
	Session     model.SessionID `json:"session"`
	Course      string          `json:"course"`
	Teacher     string          `json:"teacher"`
	Constraints []string        `json:"constraints"`
}

type Outcome struct {
	Status Status
	Delta  Delta
	// The repaired timetable, or the untouched input when the repair did not succeed
	Timetable   *model.Timetable
	Invalidated []model.Assignment
	Changes     []Change
	Blocking    []Blocker
	// Sessions outside the invalidated set were unpinned to find a fix
	Escalated bool
	Stats     engine.Stats
}

func (outcome *Outcome) Err() error {
	switch outcome.Status {
	case StatusUnresolvable:
		sessions := lo.Map(outcome.Blocking, func(blocker Blocker, _ int) model.SessionID { return blocker.Session })
		return appErrors.Clonef(appErrors.ErrUnresolvable, "no valid fix for %v after %v", sessions, outcome.Delta)
	case StatusTimedOut:
		return appErrors.Clonef(appErrors.ErrTimedOut, "repair of %v ran out of time", outcome.Delta)
	}
	return nil
}

// Affected returns the teachers whose sessions were invalidated or changed.
func (outcome *Outcome) Affected() []string {
	teachers := make([]string, 0)
	for _, assignment := range outcome.Invalidated {
		teachers = append(teachers, assignment.Teacher)
	}
	for _, change := range outcome.Changes {
		teachers = append(teachers, change.Before.Teacher, change.After.Teacher)
	}
	teachers = lo.Uniq(teachers)
	slices.Sort(teachers)
	return teachers
}

type Repairer interface {
	// Repair fixes the assignments invalidated by the delta and leaves every other one in
	// place. The input timetable is never modified.
	Repair(ctx context.Context, timetable *model.Timetable, delta Delta, budget time.Duration) (*Outcome, error)
	// Under returns a repairer that also honors the deltas applied by earlier repairs.
	Under(active ...Delta) Repairer
}

type repairer struct {
	catalog constraint.Catalog
	options Options
	log     logger.Logger
}

func NewRepairer(catalog constraint.Catalog, options Options, log logger.Logger) Repairer {
	return &repairer{catalog: catalog, options: options, log: logger.OrNop(log)}
}

func (repairer *repairer) Under(active ...Delta) Repairer {
	constraints := repairer.catalog.Constraints()
	for _, delta := range active {
		constraints = append(constraints, delta)
	}
	return &repairer{catalog: constraint.NewCatalog(constraints...), options: repairer.options, log: repairer.log}
}

func (repairer *repairer) Repair(ctx context.Context, timetable *model.Timetable, delta Delta, budget time.Duration) (*Outcome, error) {
	if timetable == nil || delta == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a timetable and a delta are required")
	}
	data := timetable.Data()
	if err := delta.Validate(data); err != nil {
		return nil, err
	} else if !timetable.Covers() {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "timetable %q is not complete: %d session(s) unassigned", timetable.Id, len(timetable.Unassigned()))
	}
	if budget <= 0 {
		budget = repairer.options.TimeBudget
	}

	outcome := &Outcome{Delta: delta, Timetable: timetable, Invalidated: Invalidated(timetable, delta)}
	if len(outcome.Invalidated) == 0 {
		outcome.Status = StatusUnchanged
		return outcome, nil
	}
	repairer.log.Debugw("repair started", map[string]any{
		"timetable":   timetable.Id,
		"delta":       delta.String(),
		"invalidated": len(outcome.Invalidated),
	})

	// The delta joins the hard constraints for the duration of the repair
	catalog := constraint.NewCatalog(append(repairer.catalog.Constraints(), delta)...)
	solver, err := engine.NewEngine(catalog, engine.Options{
		TimeBudget: budget,
		Seed:       repairer.options.Seed,
		Workers:    1,
		Chains:     1,
	}, repairer.log)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	unpinned := lo.Map(outcome.Invalidated, func(assignment model.Assignment, _ int) model.SessionID { return assignment.Session })
	result, err := repairer.solve(ctx, solver, timetable, delta, unpinned, nil)
	if err != nil {
		return nil, err
	}

	if result.Status == engine.StatusInfeasible && repairer.options.Escalate {
		ring := repairer.ring(catalog, timetable, delta, unpinned)
		if len(ring) > 0 {
			repairer.log.Debugw("repair escalated", map[string]any{"timetable": timetable.Id, "ring": len(ring)})
			escalated, err := repairer.solve(ctx, solver, timetable, delta, unpinned, ring)
			if err != nil {
				return nil, err
			}
			if escalated.Status != engine.StatusInfeasible {
				result, outcome.Escalated = escalated, true
			}
		}
	}
	outcome.Stats = result.Stats
	outcome.Stats.Duration = time.Since(start)

	switch result.Status {
	case engine.StatusComplete:
		outcome.Status = StatusRepaired
		outcome.Timetable = result.Timetable
		outcome.Timetable.Version = timetable.Version + 1
		outcome.Changes = changes(timetable, result.Timetable)
	case engine.StatusInfeasible:
		outcome.Status = StatusUnresolvable
		outcome.Blocking = blockers(data, outcome.Invalidated, result)
	default:
		outcome.Status = StatusTimedOut
	}
	repairer.log.Debugw("repair finished", map[string]any{
		"timetable": timetable.Id,
		"status":    outcome.Status.String(),
		"changes":   len(outcome.Changes),
	})
	return outcome, nil
}

// solve re-runs the engine on the invalidated sessions, plus the ring sessions when escalating,
// with every other assignment pinned. Ring sessions keep their course teacher but may move
// anywhere.
func (repairer *repairer) solve(ctx context.Context, solver engine.Engine, timetable *model.Timetable, delta Delta, invalidated, ring []model.SessionID) (*engine.Result, error) {
	data := timetable.Data()
	sessions := slices.Concat(invalidated, ring)
	original := lo.SliceToMap(sessions, func(session model.SessionID) (model.SessionID, model.Assignment) {
		current, _ := timetable.Assignment(session)
		return session, current
	})
	pinned := lo.Filter(timetable.Assignments(), func(assignment model.Assignment, _ int) bool {
		_, free := original[assignment.Session]
		return !free
	})

	candidates := make(map[model.SessionID][]model.Assignment, len(invalidated))
	for _, session := range invalidated {
		candidates[session] = repairer.candidates(data, delta, original[session])
	}
	for _, session := range ring {
		current := original[session]
		candidates[session] = lo.FlatMap(lo.Range(data.Grid().Len()), func(slot int, _ int) []model.Assignment {
			return lo.Map(data.Rooms(), func(room model.Room, _ int) model.Assignment {
				return model.Assignment{Id: current.Id, Session: session, Slot: slot, Room: room.Id, Teacher: current.Teacher, Substitute: current.Substitute}
			})
		})
	}

	return solver.Solve(ctx, engine.Problem{
		Data:        data,
		Sessions:    sessions,
		Pinned:      pinned,
		Candidates:  candidates,
		Cost:        func(candidate model.Assignment) int { return disruption(original[candidate.Session], candidate) },
		TimetableId: timetable.Id,
		Version:     timetable.Version,
	})
}

// candidates lists the replacements considered for an assignment. Teacher deltas keep the slot
// and try every other teacher as a substitute; other deltas keep the course teacher or the
// current substitute. Sessions may also move when the delta allows it.
// Candidates the catalog rejects are recorded by the engine as the reason a repair failed.
func (repairer *repairer) candidates(data *model.Dataset, delta Delta, current model.Assignment) []model.Assignment {
	course := data.CourseOf(current.Session)
	rooms := data.Rooms()
	result := make([]model.Assignment, 0)

	slots := []int{current.Slot}
	if delta.movable() {
		slots = lo.Range(data.Grid().Len())
	}

	teachers := lo.Uniq([]string{course.Teacher, current.Teacher})
	if delta.teacherDelta() {
		teachers = append(teachers, lo.Without(lo.Map(data.Teachers(), func(teacher model.Teacher, _ int) string { return teacher.Id }), course.Teacher)...)
	}

	for _, slot := range slots {
		for _, room := range rooms {
			for _, teacher := range teachers {
				substitute := teacher != course.Teacher
				// Substitutes only stand in on the original slot
				if substitute && slot != current.Slot {
					continue
				}
				result = append(result, model.Assignment{
					Id:         current.Id,
					Session:    current.Session,
					Slot:       slot,
					Room:       room.Id,
					Teacher:    teacher,
					Substitute: substitute,
				})
			}
		}
	}
	return result
}

// disruption ranks a replacement: same slot with a substitute beats a move to another slot,
// and keeping the room or the teacher is cheaper than changing them.
func disruption(before, after model.Assignment) int {
	cost := 0
	if after.Slot != before.Slot {
		cost += 4
	}
	if after.Teacher != before.Teacher {
		cost += 2
	}
	if after.Room != before.Room {
		cost++
	}
	return cost
}

// ring returns the pinned sessions that take a resource some invalidated session could use
// in one of its candidate slots.
func (repairer *repairer) ring(catalog constraint.Catalog, timetable *model.Timetable, delta Delta, sessions []model.SessionID) []model.SessionID {
	data := timetable.Data()
	free := lo.SliceToMap(sessions, func(session model.SessionID) (model.SessionID, bool) { return session, true })
	ring := make(map[model.SessionID]bool)
	for _, session := range sessions {
		current, _ := timetable.Assignment(session)
		for _, candidate := range repairer.candidates(data, delta, current) {
			if _, ok := catalog.Admits(data, candidate); !ok {
				continue
			}
			for _, other := range timetable.Assignments() {
				if free[other.Session] || ring[other.Session] {
					continue
				}
				if _, clash := catalog.Clash(data, candidate, other); clash {
					ring[other.Session] = true
				}
			}
		}
	}
	neighbors := lo.Keys(ring)
	slices.Sort(neighbors)
	return neighbors
}

func changes(before, after *model.Timetable) []Change {
	result := make([]Change, 0)
	for _, assignment := range after.Assignments() {
		previous, ok := before.Assignment(assignment.Session)
		if !ok || previous != assignment {
			result = append(result, Change{Before: previous, After: assignment})
		}
	}
	return result
}

func blockers(data *model.Dataset, invalidated []model.Assignment, result *engine.Result) []Blocker {
	sessions := result.Conflict
	if len(sessions) == 0 {
		sessions = result.Unassigned
	}
	if len(sessions) == 0 {
		sessions = lo.Map(invalidated, func(assignment model.Assignment, _ int) model.SessionID { return assignment.Session })
	}
	return lo.Map(sessions, func(session model.SessionID, _ int) Blocker {
		course := data.CourseOf(session)
		return Blocker{
			Session:     session,
			Course:      course.Id,
			Teacher:     course.Teacher,
			Constraints: slices.Clone(result.Blocking),
		}
	})
}
