package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	appErrors "github.com/limaJavier/timetabler/pkg/errors"
)

var validate = validator.New()

// Issue is one invariant violated by the input data.
type Issue struct {
	Entity  string `json:"entity"`
	Id      string `json:"id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (issue Issue) String() string {
	if issue.Field != "" {
		return fmt.Sprintf("%s %q (%s): %s", issue.Entity, issue.Id, issue.Field, issue.Message)
	}
	return fmt.Sprintf("%s %q: %s", issue.Entity, issue.Id, issue.Message)
}

// Issues is the error wrapped by validation failures.
type Issues []Issue

func (issues Issues) Error() string {
	return strings.Join(lo.Map(issues, func(issue Issue, _ int) string { return issue.String() }), "; ")
}

// Dataset is the read-only working set of a planning run. Every record is copied on the way in
// and on the way out, so callers cannot mutate it while a run is in progress.
type Dataset struct {
	grid     *Grid
	teachers []Teacher
	rooms    []Room
	courses  []Course
	sessions []Session

	teacherIndex map[string]int
	roomIndex    map[string]int
	courseIndex  map[string]int
	sessionIndex map[SessionID]int
	// Sessions belonging to each course, in number order
	courseSessions map[string][]SessionID
}

// NewDataset validates the records and derives one session per weekly meeting of each course.
// Missing ids are generated from the Sequence carried by ctx.
func NewDataset(ctx context.Context, grid *Grid, teachers []Teacher, rooms []Room, courses []Course) (*Dataset, error) {
	if grid == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a grid is required")
	}
	sequence := SequenceFrom(ctx)

	data := &Dataset{
		grid:           grid,
		teachers:       lo.Map(teachers, func(teacher Teacher, _ int) Teacher { return teacher.clone() }),
		rooms:          lo.Map(rooms, func(room Room, _ int) Room { return room.clone() }),
		courses:        lo.Map(courses, func(course Course, _ int) Course { return course.clone() }),
		teacherIndex:   make(map[string]int),
		roomIndex:      make(map[string]int),
		courseIndex:    make(map[string]int),
		sessionIndex:   make(map[SessionID]int),
		courseSessions: make(map[string][]SessionID),
	}

	issues := make(Issues, 0)

	//** Teachers
	for i := range data.teachers {
		teacher := &data.teachers[i]
		if teacher.Id == "" {
			teacher.Id = sequence.Next("TCH", teacher.Department)
		}
		issues = append(issues, structIssues("teacher", teacher.Id, teacher)...)
		issues = append(issues, availabilityIssues("teacher", teacher.Id, "availability", teacher.Availability)...)
		if _, ok := data.teacherIndex[teacher.Id]; ok {
			issues = append(issues, Issue{Entity: "teacher", Id: teacher.Id, Message: "duplicate id"})
		}
		data.teacherIndex[teacher.Id] = i
	}

	//** Rooms
	for i := range data.rooms {
		room := &data.rooms[i]
		if room.Id == "" {
			room.Id = sequence.Next("ROOM", strings.ToUpper(string(room.Type)))
		}
		issues = append(issues, structIssues("room", room.Id, room)...)
		issues = append(issues, availabilityIssues("room", room.Id, "availability", room.Availability)...)
		if _, ok := data.roomIndex[room.Id]; ok {
			issues = append(issues, Issue{Entity: "room", Id: room.Id, Message: "duplicate id"})
		}
		data.roomIndex[room.Id] = i
	}

	//** Courses
	for i := range data.courses {
		course := &data.courses[i]
		if course.Id == "" {
			course.Id = sequence.Next("CRS", course.Department)
		}
		if course.Subject == "" {
			course.Subject = course.Name
		}
		issues = append(issues, structIssues("course", course.Id, course)...)
		issues = append(issues, availabilityIssues("course", course.Id, "permitted", course.Permitted)...)
		if _, ok := data.courseIndex[course.Id]; ok {
			issues = append(issues, Issue{Entity: "course", Id: course.Id, Message: "duplicate id"})
		}
		data.courseIndex[course.Id] = i

		// Teacher may be referenced by id or by name
		if _, ok := data.teacherIndex[course.Teacher]; !ok {
			teacher, found := lo.Find(data.teachers, func(teacher Teacher) bool { return teacher.Name == course.Teacher })
			if found {
				course.Teacher = teacher.Id
			} else {
				issues = append(issues, Issue{Entity: "course", Id: course.Id, Field: "teacher", Message: fmt.Sprintf("unknown teacher %q", course.Teacher)})
			}
		}

		// Capacity pool: some room of the required type must fit the enrollment
		if !lo.SomeBy(data.rooms, func(room Room) bool { return room.Type == course.RoomType && room.Capacity >= course.Enrollment }) {
			issues = append(issues, Issue{Entity: "course", Id: course.Id, Field: "enrollment", Message: fmt.Sprintf("enrollment %d exceeds the capacity of every %s room", course.Enrollment, course.RoomType)})
		}

		for number := 1; number <= course.Sessions; number++ {
			session := Session{Id: NewSessionID(course.Id, number), Course: course.Id, Number: number}
			data.sessionIndex[session.Id] = len(data.sessions)
			data.sessions = append(data.sessions, session)
			data.courseSessions[course.Id] = append(data.courseSessions[course.Id], session.Id)
		}
	}

	if len(issues) > 0 {
		return nil, appErrors.Wrap(issues, appErrors.CodeValidation, fmt.Sprintf("%d invalid record(s)", len(issues)))
	}
	return data, nil
}

func structIssues(entity, id string, value any) []Issue {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []Issue{{Entity: entity, Id: id, Message: err.Error()}}
	}
	return lo.Map(fieldErrors, func(fieldError validator.FieldError, _ int) Issue {
		return Issue{
			Entity:  entity,
			Id:      id,
			Field:   strings.ToLower(fieldError.Field()),
			Message: fmt.Sprintf("failed %q constraint (value %v)", fieldError.Tag(), fieldError.Value()),
		}
	})
}

func availabilityIssues(entity, id, field string, intervals []Interval) []Issue {
	issues := make([]Issue, 0)
	for _, interval := range intervals {
		if !interval.Valid() {
			issues = append(issues, Issue{Entity: entity, Id: id, Field: field, Message: fmt.Sprintf("invalid interval %v", interval)})
		}
	}
	if first, second, ok := firstOverlap(intervals); ok {
		issues = append(issues, Issue{Entity: entity, Id: id, Field: field, Message: fmt.Sprintf("intervals %v and %v overlap", first, second)})
	}
	return issues
}

func (data *Dataset) Grid() *Grid { return data.grid }

func (data *Dataset) Teachers() []Teacher {
	return lo.Map(data.teachers, func(teacher Teacher, _ int) Teacher { return teacher.clone() })
}

func (data *Dataset) Rooms() []Room {
	return lo.Map(data.rooms, func(room Room, _ int) Room { return room.clone() })
}

func (data *Dataset) Courses() []Course {
	return lo.Map(data.courses, func(course Course, _ int) Course { return course.clone() })
}

func (data *Dataset) Sessions() []Session { return slices.Clone(data.sessions) }

func (data *Dataset) Teacher(id string) (Teacher, bool) {
	i, ok := data.teacherIndex[id]
	if !ok {
		return Teacher{}, false
	}
	return data.teachers[i].clone(), true
}

func (data *Dataset) Room(id string) (Room, bool) {
	i, ok := data.roomIndex[id]
	if !ok {
		return Room{}, false
	}
	return data.rooms[i].clone(), true
}

func (data *Dataset) Course(id string) (Course, bool) {
	i, ok := data.courseIndex[id]
	if !ok {
		return Course{}, false
	}
	return data.courses[i].clone(), true
}

func (data *Dataset) Session(id SessionID) (Session, bool) {
	i, ok := data.sessionIndex[id]
	if !ok {
		return Session{}, false
	}
	return data.sessions[i], true
}

// CourseOf returns the course owning the session. The course is shared with the dataset and
// must not be modified. It panics on unknown sessions.
func (data *Dataset) CourseOf(id SessionID) *Course {
	i, ok := data.sessionIndex[id]
	if !ok {
		panic(fmt.Sprintf("session %q not found", id))
	}
	return &data.courses[data.courseIndex[data.sessions[i].Course]]
}

// SessionsOf returns the sessions of a course in number order.
func (data *Dataset) SessionsOf(course string) []SessionID {
	return slices.Clone(data.courseSessions[course])
}

// TeacherAvailable reports whether the teacher may teach in the slot.
func (data *Dataset) TeacherAvailable(teacher string, slot TimeSlot) bool {
	i, ok := data.teacherIndex[teacher]
	return ok && data.teachers[i].AvailableAt(slot)
}

// RoomAvailable reports whether the room may host a session in the slot.
func (data *Dataset) RoomAvailable(room string, slot TimeSlot) bool {
	i, ok := data.roomIndex[room]
	return ok && data.rooms[i].AvailableAt(slot)
}

// Preferences returns the teacher's preferences, zero for unknown teachers.
func (data *Dataset) Preferences(teacher string) Preferences {
	if i, ok := data.teacherIndex[teacher]; ok {
		return data.teachers[i].Preferences
	}
	return Preferences{}
}

// RoomFacts returns capacity and type without copying the availability.
func (data *Dataset) RoomFacts(room string) (capacity int, roomType RoomType, ok bool) {
	i, ok := data.roomIndex[room]
	if !ok {
		return 0, "", false
	}
	return data.rooms[i].Capacity, data.rooms[i].Type, true
}

// Teaches reports whether the teacher is qualified for the subject.
func (data *Dataset) Teaches(teacher, subject string) bool {
	i, ok := data.teacherIndex[teacher]
	return ok && data.teachers[i].Teaches(subject)
}

// Qualified returns the teachers (other than exclude) whose subjects include the given one.
func (data *Dataset) Qualified(subject string, exclude string) []string {
	return lo.FilterMap(data.teachers, func(teacher Teacher, _ int) (string, bool) {
		return teacher.Id, teacher.Id != exclude && teacher.Teaches(subject)
	})
}

// FreeIntervals returns the teacher's availability on the given day clipped to the grid.
func (data *Dataset) FreeIntervals(teacher string, day Day) []Interval {
	i, ok := data.teacherIndex[teacher]
	if !ok {
		return nil
	}
	slots := data.grid.SlotsOn(day)
	if len(slots) == 0 {
		return nil
	}
	dayWindow := Interval{Day: day, Start: slots[0].Start, End: slots[len(slots)-1].End}
	if len(data.teachers[i].Availability) == 0 {
		return []Interval{dayWindow}
	}

	free := make([]Interval, 0)
	for _, interval := range data.teachers[i].Availability {
		if interval.Day != day || !interval.Overlaps(dayWindow) {
			continue
		}
		free = append(free, Interval{Day: day, Start: max(interval.Start, dayWindow.Start), End: min(interval.End, dayWindow.End)})
	}
	sortIntervals(free)
	return free
}

// Departments returns the sorted set of departments mentioned by courses.
func (data *Dataset) Departments() []string {
	departments := lo.Uniq(lo.Map(data.courses, func(course Course, _ int) string { return course.Department }))
	slices.Sort(departments)
	return departments
}
