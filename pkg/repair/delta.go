package repair

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

// Delta is a fact that changed after a timetable was produced. Deltas act as extra hard
// constraints during repair, so rejected candidates are reported under their name.
type Delta interface {
	constraint.Constraint
	constraint.Filter
	Validate(data *model.Dataset) error
	String() string
	// Teacher deltas keep the slot and look for a substitute
	teacherDelta() bool
	// Whether invalidated sessions may move to another slot
	movable() bool
}

const DateLayout = "2006-01-02"

// TeacherAbsence marks a teacher absent on one date, i.e. on the weekday of that date.
type TeacherAbsence struct {
	Teacher string    `json:"teacher"`
	Date    time.Time `json:"date"`
}

// RoomOutage takes a room offline for a day, or for the whole week when Day is nil.
type RoomOutage struct {
	Room string     `json:"room"`
	Day  *model.Day `json:"day,omitempty"`
}

// TeacherUnavailable withdraws part of a teacher's availability for good.
type TeacherUnavailable struct {
	Teacher  string         `json:"teacher"`
	Interval model.Interval `json:"interval"`
}

// Weekday converts the date to a grid day.
func (delta TeacherAbsence) Weekday() model.Day {
	return model.Day((int(delta.Date.Weekday()) + 6) % 7)
}

func (delta TeacherAbsence) Name() string { return "Teacher absence" }

func (delta TeacherAbsence) Admits(data *model.Dataset, candidate model.Assignment) bool {
	return candidate.Teacher != delta.Teacher || data.Grid().Slot(candidate.Slot).Day != delta.Weekday()
}

func (delta TeacherAbsence) Validate(data *model.Dataset) error {
	if _, ok := data.Teacher(delta.Teacher); !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "unknown teacher %q", delta.Teacher)
	} else if delta.Date.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "absence date is required")
	}
	return nil
}

func (delta TeacherAbsence) String() string {
	return fmt.Sprintf("%s absent on %s (%v)", delta.Teacher, delta.Date.Format(DateLayout), delta.Weekday())
}

func (delta TeacherAbsence) teacherDelta() bool { return true }
func (delta TeacherAbsence) movable() bool      { return false }

func (delta RoomOutage) Name() string { return "Room outage" }

func (delta RoomOutage) Admits(data *model.Dataset, candidate model.Assignment) bool {
	return candidate.Room != delta.Room || (delta.Day != nil && data.Grid().Slot(candidate.Slot).Day != *delta.Day)
}

func (delta RoomOutage) Validate(data *model.Dataset) error {
	if _, ok := data.Room(delta.Room); !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "unknown room %q", delta.Room)
	} else if delta.Day != nil && !delta.Day.Valid() {
		return appErrors.Clonef(appErrors.ErrValidation, "invalid outage day %v", *delta.Day)
	}
	return nil
}

func (delta RoomOutage) String() string {
	if delta.Day == nil {
		return fmt.Sprintf("%s offline all week", delta.Room)
	}
	return fmt.Sprintf("%s offline on %v", delta.Room, *delta.Day)
}

func (delta RoomOutage) teacherDelta() bool { return false }
func (delta RoomOutage) movable() bool      { return true }

func (delta TeacherUnavailable) Name() string { return "Teacher unavailability" }

func (delta TeacherUnavailable) Admits(data *model.Dataset, candidate model.Assignment) bool {
	return candidate.Teacher != delta.Teacher || !data.Grid().Slot(candidate.Slot).Interval().Overlaps(delta.Interval)
}

func (delta TeacherUnavailable) Validate(data *model.Dataset) error {
	if _, ok := data.Teacher(delta.Teacher); !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "unknown teacher %q", delta.Teacher)
	} else if !delta.Interval.Valid() {
		return appErrors.Clonef(appErrors.ErrValidation, "invalid interval %v", delta.Interval)
	}
	return nil
}

func (delta TeacherUnavailable) String() string {
	return fmt.Sprintf("%s unavailable on %v", delta.Teacher, delta.Interval)
}

func (delta TeacherUnavailable) teacherDelta() bool { return true }
func (delta TeacherUnavailable) movable() bool      { return true }

//** Constraint plumbing shared by every delta

func (delta TeacherAbsence) Code() constraint.Code     { return constraint.Disruption }
func (delta RoomOutage) Code() constraint.Code         { return constraint.Disruption }
func (delta TeacherUnavailable) Code() constraint.Code { return constraint.Disruption }

func (delta TeacherAbsence) Kind() constraint.Kind     { return constraint.Hard }
func (delta RoomOutage) Kind() constraint.Kind         { return constraint.Hard }
func (delta TeacherUnavailable) Kind() constraint.Kind { return constraint.Hard }

func (delta TeacherAbsence) Weight() float64     { return 0 }
func (delta RoomOutage) Weight() float64         { return 0 }
func (delta TeacherUnavailable) Weight() float64 { return 0 }

func (delta TeacherAbsence) Evaluate(timetable *model.Timetable) []constraint.Violation {
	return evaluate(delta, delta.Teacher, timetable)
}

func (delta RoomOutage) Evaluate(timetable *model.Timetable) []constraint.Violation {
	return evaluate(delta, delta.Room, timetable)
}

func (delta TeacherUnavailable) Evaluate(timetable *model.Timetable) []constraint.Violation {
	return evaluate(delta, delta.Teacher, timetable)
}

func evaluate(delta Delta, resource string, timetable *model.Timetable) []constraint.Violation {
	grid := timetable.Data().Grid()
	return lo.Map(Invalidated(timetable, delta), func(assignment model.Assignment, _ int) constraint.Violation {
		return constraint.Violation{
			Code:       constraint.Disruption,
			Constraint: delta.Name(),
			Kind:       constraint.Hard,
			Sessions:   []model.SessionID{assignment.Session},
			Resource:   resource,
			Slots:      []int{assignment.Slot},
			Amount:     1,
			Message:    fmt.Sprintf("%s at %v: %v", assignment.Session, grid.Slot(assignment.Slot), delta),
		}
	})
}

// Invalidated returns the assignments of the timetable broken by the delta. Nothing else is
// affected: every other assignment stays valid because the delta only withdraws resources.
func Invalidated(timetable *model.Timetable, delta Delta) []model.Assignment {
	data := timetable.Data()
	return lo.Filter(timetable.Assignments(), func(assignment model.Assignment, _ int) bool {
		return !delta.Admits(data, assignment)
	})
}

// ParseDelta reads the compact delta notation used on the command line:
//
//	absence:<teacher>@<yyyy-mm-dd>
//	outage:<room>[@<day>]
//	unavailable:<teacher>@<day>:<from>-<to>
func ParseDelta(s string) (Delta, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || rest == "" {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "malformed delta %q", s)
	}
	subject, argument, hasArgument := strings.Cut(rest, "@")

	switch strings.ToLower(kind) {
	case "absence":
		if !hasArgument {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "absence %q needs a date", s)
		}
		date, err := time.Parse(DateLayout, argument)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid absence date")
		}
		return TeacherAbsence{Teacher: subject, Date: date}, nil
	case "outage":
		outage := RoomOutage{Room: subject}
		if hasArgument {
			day, err := model.ParseDay(argument)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid outage day")
			}
			outage.Day = &day
		}
		return outage, nil
	case "unavailable":
		intervals, err := model.ParseIntervals(argument)
		if err != nil || len(intervals) != 1 {
			return nil, appErrors.Clonef(appErrors.ErrValidation, "unavailability %q needs exactly one interval", s)
		}
		return TeacherUnavailable{Teacher: subject, Interval: intervals[0]}, nil
	}
	return nil, appErrors.Clonef(appErrors.ErrValidation, "unknown delta kind %q", kind)
}
