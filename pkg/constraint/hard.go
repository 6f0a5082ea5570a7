package constraint

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/model"
)

//** Overlap constraints

// overlap forbids two assignments sharing a resource (teacher, room or class) in overlapping
// slots.
type overlap struct {
	code     Code
	name     string
	resource func(data *model.Dataset, assignment model.Assignment) string
}

func NewTeacherOverlap() Constraint {
	return &overlap{
		code: TeacherOverlap,
		name: "Teacher non-overlap",
		resource: func(_ *model.Dataset, assignment model.Assignment) string {
			return assignment.Teacher
		},
	}
}

func NewRoomOverlap() Constraint {
	return &overlap{
		code: RoomOverlap,
		name: "Room non-overlap",
		resource: func(_ *model.Dataset, assignment model.Assignment) string {
			return assignment.Room
		},
	}
}

func NewClassOverlap() Constraint {
	return &overlap{
		code: ClassOverlap,
		name: "Class non-overlap",
		resource: func(data *model.Dataset, assignment model.Assignment) string {
			return data.CourseOf(assignment.Session).Class
		},
	}
}

func (constraint *overlap) Code() Code      { return constraint.code }
func (constraint *overlap) Name() string    { return constraint.name }
func (constraint *overlap) Kind() Kind      { return Hard }
func (constraint *overlap) Weight() float64 { return 0 }

func (constraint *overlap) Clash(data *model.Dataset, a, b model.Assignment) bool {
	if a.Session == b.Session {
		return false
	}
	grid := data.Grid()
	return constraint.resource(data, a) == constraint.resource(data, b) && grid.Slot(a.Slot).Overlaps(grid.Slot(b.Slot))
}

func (constraint *overlap) Evaluate(timetable *model.Timetable) []Violation {
	data := timetable.Data()
	grid := data.Grid()

	byResource := lo.GroupBy(timetable.Assignments(), func(assignment model.Assignment) string {
		return constraint.resource(data, assignment)
	})
	resources := lo.Keys(byResource)
	slices.Sort(resources)

	violations := make([]Violation, 0)
	for _, resource := range resources {
		assignments := byResource[resource]
		for i := 0; i < len(assignments)-1; i++ {
			for j := i + 1; j < len(assignments); j++ {
				a, b := assignments[i], assignments[j]
				if !grid.Slot(a.Slot).Overlaps(grid.Slot(b.Slot)) {
					continue
				}
				violations = append(violations, Violation{
					Code:       constraint.code,
					Constraint: constraint.name,
					Kind:       Hard,
					Sessions:   []model.SessionID{a.Session, b.Session},
					Resource:   resource,
					Slots:      []int{a.Slot, b.Slot},
					Amount:     1,
					Message:    fmt.Sprintf("%s is booked twice at %v", resource, grid.Slot(a.Slot)),
				})
			}
		}
	}
	return violations
}

//** Unary constraints

// unary is a hard constraint decidable on a single assignment.
type unary struct {
	code   Code
	name   string
	admits func(data *model.Dataset, candidate model.Assignment) (resource string, ok bool)
	reason string
}

// NewAvailability requires the slot to lie within the teacher's and the room's availability,
// and within the course's permitted intervals when it declares any.
func NewAvailability() Constraint {
	return &unary{
		code:   Availability,
		name:   "Availability containment",
		reason: "is not available",
		admits: func(data *model.Dataset, candidate model.Assignment) (string, bool) {
			slot := data.Grid().Slot(candidate.Slot)
			if !data.TeacherAvailable(candidate.Teacher, slot) {
				return candidate.Teacher, false
			} else if !data.RoomAvailable(candidate.Room, slot) {
				return candidate.Room, false
			} else if course := data.CourseOf(candidate.Session); !course.PermittedAt(slot) {
				return course.Id, false
			}
			return "", true
		},
	}
}

func NewCapacity() Constraint {
	return &unary{
		code:   Capacity,
		name:   "Capacity",
		reason: "is too small for the enrollment",
		admits: func(data *model.Dataset, candidate model.Assignment) (string, bool) {
			capacity, _, ok := data.RoomFacts(candidate.Room)
			return candidate.Room, ok && data.CourseOf(candidate.Session).Enrollment <= capacity
		},
	}
}

func NewRoomType() Constraint {
	return &unary{
		code:   RoomType,
		name:   "Room-type match",
		reason: "has the wrong room type",
		admits: func(data *model.Dataset, candidate model.Assignment) (string, bool) {
			_, roomType, ok := data.RoomFacts(candidate.Room)
			return candidate.Room, ok && data.CourseOf(candidate.Session).RoomType == roomType
		},
	}
}

// NewQualification requires the assigned teacher to be the course teacher, or a substitute
// qualified for the course subject.
func NewQualification() Constraint {
	return &unary{
		code:   Qualification,
		name:   "Teacher qualification",
		reason: "is not qualified for the course",
		admits: func(data *model.Dataset, candidate model.Assignment) (string, bool) {
			course := data.CourseOf(candidate.Session)
			if candidate.Teacher == course.Teacher {
				return candidate.Teacher, true
			}
			return candidate.Teacher, candidate.Substitute && data.Teaches(candidate.Teacher, course.Subject)
		},
	}
}

func (constraint *unary) Code() Code      { return constraint.code }
func (constraint *unary) Name() string    { return constraint.name }
func (constraint *unary) Kind() Kind      { return Hard }
func (constraint *unary) Weight() float64 { return 0 }

func (constraint *unary) Admits(data *model.Dataset, candidate model.Assignment) bool {
	_, ok := constraint.admits(data, candidate)
	return ok
}

func (constraint *unary) Evaluate(timetable *model.Timetable) []Violation {
	data := timetable.Data()
	violations := make([]Violation, 0)
	for _, assignment := range timetable.Assignments() {
		resource, ok := constraint.admits(data, assignment)
		if ok {
			continue
		}
		violations = append(violations, Violation{
			Code:       constraint.code,
			Constraint: constraint.name,
			Kind:       Hard,
			Sessions:   []model.SessionID{assignment.Session},
			Resource:   resource,
			Slots:      []int{assignment.Slot},
			Amount:     1,
			Message:    fmt.Sprintf("%s %s at %v", resource, constraint.reason, data.Grid().Slot(assignment.Slot)),
		})
	}
	return violations
}

func sortViolations(violations []Violation) {
	slices.SortStableFunc(violations, func(a, b Violation) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}
