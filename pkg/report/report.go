package report

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
)

// Session names a session together with the records it belongs to.
type Session struct {
	Id      model.SessionID `json:"id"`
	Course  string          `json:"course"`
	Name    string          `json:"name"`
	Class   string          `json:"class"`
	Teacher string          `json:"teacher"`
}

// Entry is one constraint violation in human terms.
type Entry struct {
	Constraint string    `json:"constraint"`
	Kind       string    `json:"kind"`
	Sessions   []Session `json:"sessions"`
	Resource   string    `json:"resource,omitempty"`
	Slots      []string  `json:"slots,omitempty"`
	Amount     float64   `json:"amount"`
	Penalty    float64   `json:"penalty,omitempty"`
	Message    string    `json:"message"`
}

// Row is one assignment of a timetable.
type Row struct {
	Id         string          `json:"id"`
	Slot       string          `json:"slot"`
	Session    model.SessionID `json:"session"`
	Course     string          `json:"course"`
	Class      string          `json:"class"`
	Room       string          `json:"room"`
	Teacher    string          `json:"teacher"`
	Substitute bool            `json:"substitute,omitempty"`
}

type Change struct {
	Session model.SessionID `json:"session"`
	Before  Row             `json:"before"`
	After   Row             `json:"after"`
}

type Blocker struct {
	Session     Session  `json:"session"`
	Constraints []string `json:"constraints"`
}

// Report is the read-only explanation of a schedule or repair outcome.
type Report struct {
	Operation   string    `json:"operation"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	TimetableId string    `json:"timetable_id,omitempty"`
	Version     int       `json:"version"`
	Score       float64   `json:"score"`
	Hard        []Entry   `json:"hard"`
	Soft        []Entry   `json:"soft"`
	Conflict    []Session `json:"conflict,omitempty"`
	Blocking    []string  `json:"blocking,omitempty"`
	Unassigned  []Session `json:"unassigned,omitempty"`
	Changes     []Change  `json:"changes,omitempty"`
	Unresolved  []Blocker `json:"unresolved,omitempty"`
	Rows        []Row     `json:"rows"`
}

// Explain describes a *engine.Result or a *repair.Outcome. Other values produce a report with
// status "unknown".
func Explain(outcome any) Report {
	switch outcome := outcome.(type) {
	case *engine.Result:
		return explainResult(outcome)
	case *repair.Outcome:
		return explainRepair(outcome)
	}
	return Report{Operation: "unknown", Status: "unknown", Summary: fmt.Sprintf("cannot explain %T", outcome)}
}

// ExplainTimetable evaluates a stored timetable against the catalog.
func ExplainTimetable(timetable *model.Timetable, catalog constraint.Catalog) Report {
	data := timetable.Data()
	evaluation := catalog.Evaluate(timetable)
	report := Report{
		Operation:   "verify",
		Status:      timetable.State.String(),
		TimetableId: timetable.Id,
		Version:     timetable.Version,
		Score:       evaluation.Score,
		Hard:        entries(data, evaluation.Hard),
		Soft:        entries(data, evaluation.Soft),
		Unassigned:  sessions(data, timetable.Unassigned()),
		Rows:        rows(timetable),
	}
	report.Summary = fmt.Sprintf("%d assignment(s), %d hard violation(s), score %.2f", timetable.Len(), len(report.Hard), report.Score)
	return report
}

func explainResult(result *engine.Result) Report {
	timetable := result.Timetable
	data := timetable.Data()
	report := Report{
		Operation:   "schedule",
		Status:      result.Status.String(),
		TimetableId: timetable.Id,
		Version:     timetable.Version,
		Score:       result.Score,
		Hard:        entries(data, result.Hard),
		Soft:        entries(data, result.Soft),
		Blocking:    result.Blocking,
		Rows:        rows(timetable),
	}

	switch result.Status {
	case engine.StatusComplete:
		report.Summary = fmt.Sprintf("all %d session(s) scheduled, score %.2f", timetable.Len(), result.Score)
	case engine.StatusInfeasible:
		report.Conflict = sessions(data, result.Conflict)
		report.Unassigned = sessions(data, result.Unassigned)
		report.Summary = fmt.Sprintf("no complete schedule exists: %s", describeConflict(report.Conflict, result.Blocking))
	case engine.StatusTimedOut:
		report.Unassigned = sessions(data, result.Unassigned)
		report.Summary = fmt.Sprintf("time budget exhausted: best found has %d of %d session(s), %d hard violation(s)",
			timetable.Len(), timetable.Len()+len(result.Unassigned), len(result.Hard))
	}
	return report
}

func explainRepair(outcome *repair.Outcome) Report {
	timetable := outcome.Timetable
	data := timetable.Data()
	report := Report{
		Operation:   "repair",
		Status:      outcome.Status.String(),
		TimetableId: timetable.Id,
		Version:     timetable.Version,
		Score:       timetable.Score,
		Hard:        []Entry{},
		Soft:        []Entry{},
		Rows:        rows(timetable),
	}
	for _, change := range outcome.Changes {
		report.Changes = append(report.Changes, Change{Session: change.After.Session, Before: row(data, change.Before), After: row(data, change.After)})
	}
	for _, blocker := range outcome.Blocking {
		report.Unresolved = append(report.Unresolved, Blocker{Session: session(data, blocker.Session), Constraints: blocker.Constraints})
	}

	switch outcome.Status {
	case repair.StatusUnchanged:
		report.Summary = fmt.Sprintf("%v affects no assignment", outcome.Delta)
	case repair.StatusRepaired:
		report.Summary = fmt.Sprintf("%v: %d assignment(s) invalidated, %d changed", outcome.Delta, len(outcome.Invalidated), len(outcome.Changes))
		if outcome.Escalated {
			report.Summary += " (neighbouring sessions moved)"
		}
	case repair.StatusUnresolvable:
		report.Summary = fmt.Sprintf("%v cannot be repaired: %s", outcome.Delta, strings.Join(lo.Map(report.Unresolved, func(blocker Blocker, _ int) string {
			return fmt.Sprintf("%s (%s) blocked by %s", blocker.Session.Id, blocker.Session.Name, strings.Join(blocker.Constraints, ", "))
		}), "; "))
	case repair.StatusTimedOut:
		report.Summary = fmt.Sprintf("%v: repair ran out of time, timetable unchanged", outcome.Delta)
	}
	return report
}

func describeConflict(conflict []Session, blocking []string) string {
	if len(conflict) == 0 {
		return fmt.Sprintf("blocked by %s", strings.Join(blocking, ", "))
	}
	courses := lo.Uniq(lo.Map(conflict, func(session Session, _ int) string { return session.Name }))
	teachers := lo.Uniq(lo.Map(conflict, func(session Session, _ int) string { return session.Teacher }))
	return fmt.Sprintf("courses %s taught by %s cannot all be placed (%s)",
		strings.Join(courses, ", "), strings.Join(teachers, ", "), strings.Join(blocking, ", "))
}

func session(data *model.Dataset, id model.SessionID) Session {
	course := data.CourseOf(id)
	return Session{Id: id, Course: course.Id, Name: course.Name, Class: course.Class, Teacher: course.Teacher}
}

func sessions(data *model.Dataset, ids []model.SessionID) []Session {
	return lo.Map(ids, func(id model.SessionID, _ int) Session { return session(data, id) })
}

func entries(data *model.Dataset, violations []constraint.Violation) []Entry {
	grid := data.Grid()
	return lo.Map(violations, func(violation constraint.Violation, _ int) Entry {
		return Entry{
			Constraint: violation.Constraint,
			Kind:       violation.Kind.String(),
			Sessions:   sessions(data, violation.Sessions),
			Resource:   violation.Resource,
			Slots:      lo.Map(violation.Slots, func(slot int, _ int) string { return grid.Slot(slot).String() }),
			Amount:     violation.Amount,
			Penalty:    violation.Penalty,
			Message:    violation.Message,
		}
	})
}

func row(data *model.Dataset, assignment model.Assignment) Row {
	if assignment.Session == "" {
		return Row{}
	}
	course := data.CourseOf(assignment.Session)
	return Row{
		Id:         assignment.Id,
		Slot:       data.Grid().Slot(assignment.Slot).String(),
		Session:    assignment.Session,
		Course:     course.Name,
		Class:      course.Class,
		Room:       assignment.Room,
		Teacher:    assignment.Teacher,
		Substitute: assignment.Substitute,
	}
}

func rows(timetable *model.Timetable) []Row {
	data := timetable.Data()
	return lo.Map(timetable.Assignments(), func(assignment model.Assignment, _ int) Row { return row(data, assignment) })
}
