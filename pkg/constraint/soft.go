package constraint

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/limaJavier/timetabler/pkg/model"
)

// Weights of the soft constraints. Zero disables a constraint without removing it.
type Weights struct {
	BackToBack  float64 `json:"back_to_back" koanf:"back_to_back"`
	MaxDaily    float64 `json:"max_daily" koanf:"max_daily"`
	ClassLoad   float64 `json:"class_load" koanf:"class_load"`
	TeacherLoad float64 `json:"teacher_load" koanf:"teacher_load"`
}

func DefaultWeights() Weights {
	return Weights{
		BackToBack:  10,
		MaxDaily:    5,
		ClassLoad:   1,
		TeacherLoad: 1,
	}
}

func (weights Weights) Validate() error {
	for name, weight := range map[string]float64{
		"back_to_back": weights.BackToBack,
		"max_daily":    weights.MaxDaily,
		"class_load":   weights.ClassLoad,
		"teacher_load": weights.TeacherLoad,
	} {
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("weight %s must be a nonnegative number: %v", name, weight)
		}
	}
	return nil
}

type soft struct {
	code   Code
	name   string
	weight float64
}

func (constraint *soft) Code() Code      { return constraint.code }
func (constraint *soft) Name() string    { return constraint.name }
func (constraint *soft) Kind() Kind      { return Soft }
func (constraint *soft) Weight() float64 { return constraint.weight }

func (constraint *soft) violation(sessions []model.SessionID, resource string, slots []int, amount float64, message string) Violation {
	return Violation{
		Code:       constraint.code,
		Constraint: constraint.name,
		Kind:       Soft,
		Sessions:   sessions,
		Resource:   resource,
		Slots:      slots,
		Amount:     amount,
		Penalty:    constraint.weight * amount,
		Message:    message,
	}
}

func byTeacher(timetable *model.Timetable) (map[string][]model.Assignment, []string) {
	groups := lo.GroupBy(timetable.Assignments(), func(assignment model.Assignment) string { return assignment.Teacher })
	keys := lo.Keys(groups)
	slices.Sort(keys)
	return groups, keys
}

//** No back-to-back

type backToBack struct{ soft }

// NewBackToBack penalizes every pair of adjacent sessions of a teacher who asked for none.
func NewBackToBack(weight float64) Constraint {
	return &backToBack{soft{code: BackToBack, name: "No back-to-back", weight: weight}}
}

func (constraint *backToBack) Evaluate(timetable *model.Timetable) []Violation {
	data := timetable.Data()
	grid := data.Grid()
	groups, teachers := byTeacher(timetable)

	violations := make([]Violation, 0)
	for _, teacher := range teachers {
		if !data.Preferences(teacher).NoBackToBack {
			continue
		}
		assignments := groups[teacher]
		for i := 0; i < len(assignments)-1; i++ {
			for j := i + 1; j < len(assignments); j++ {
				a, b := assignments[i], assignments[j]
				if !grid.Adjacent(a.Slot, b.Slot) {
					continue
				}
				violations = append(violations, constraint.violation(
					[]model.SessionID{a.Session, b.Session},
					teacher,
					[]int{a.Slot, b.Slot},
					1,
					fmt.Sprintf("%s teaches back to back at %v and %v", teacher, grid.Slot(a.Slot), grid.Slot(b.Slot)),
				))
			}
		}
	}
	return violations
}

//** Max sessions per day

type maxDaily struct{ soft }

// NewMaxDaily penalizes each session beyond a teacher's daily maximum.
func NewMaxDaily(weight float64) Constraint {
	return &maxDaily{soft{code: MaxDaily, name: "Max sessions per day", weight: weight}}
}

func (constraint *maxDaily) Evaluate(timetable *model.Timetable) []Violation {
	data := timetable.Data()
	grid := data.Grid()
	groups, teachers := byTeacher(timetable)

	violations := make([]Violation, 0)
	for _, teacher := range teachers {
		limit := data.Preferences(teacher).MaxSessionsPerDay
		if limit <= 0 {
			continue
		}
		perDay := lo.GroupBy(groups[teacher], func(assignment model.Assignment) model.Day { return grid.Slot(assignment.Slot).Day })
		for _, day := range grid.Days() {
			assignments := perDay[day]
			if excess := len(assignments) - limit; excess > 0 {
				violations = append(violations, constraint.violation(
					lo.Map(assignments, func(assignment model.Assignment, _ int) model.SessionID { return assignment.Session }),
					teacher,
					lo.Map(assignments, func(assignment model.Assignment, _ int) int { return assignment.Slot }),
					float64(excess),
					fmt.Sprintf("%s teaches %d sessions on %v, above the preferred %d", teacher, len(assignments), day, limit),
				))
			}
		}
	}
	return violations
}

//** Daily load balance

// loadBalance penalizes the variance of an entity's daily load above the most even
// distribution it could achieve on the days where its sessions can be scheduled at all.
type loadBalance struct {
	soft
	entity   string
	resource func(data *model.Dataset, assignment model.Assignment) string
	// Schedulable days per entity, for the last dataset seen
	cache atomic.Pointer[daysCache]
}

type daysCache struct {
	data *model.Dataset
	days map[string][]model.Day
}

func NewClassLoad(weight float64) Constraint {
	return &loadBalance{
		soft:   soft{code: ClassLoad, name: "Class daily load balance", weight: weight},
		entity: "class",
		resource: func(data *model.Dataset, assignment model.Assignment) string {
			return data.CourseOf(assignment.Session).Class
		},
	}
}

func NewTeacherLoad(weight float64) Constraint {
	return &loadBalance{
		soft:   soft{code: TeacherLoad, name: "Teacher daily load balance", weight: weight},
		entity: "teacher",
		resource: func(_ *model.Dataset, assignment model.Assignment) string {
			return assignment.Teacher
		},
	}
}

func (constraint *loadBalance) Evaluate(timetable *model.Timetable) []Violation {
	data := timetable.Data()
	grid := data.Grid()
	schedulable := constraint.schedulableDays(data)

	groups := lo.GroupBy(timetable.Assignments(), func(assignment model.Assignment) string { return constraint.resource(data, assignment) })
	entities := lo.Keys(groups)
	slices.Sort(entities)

	violations := make([]Violation, 0)
	for _, entity := range entities {
		assignments := groups[entity]
		days := slices.Clone(schedulable[entity])
		if len(assignments) < 2 || len(days) < 2 {
			continue
		}

		load := make(map[model.Day]float64, len(days))
		for _, assignment := range assignments {
			load[grid.Slot(assignment.Slot).Day]++
		}
		// Days outside the schedulable set only occur for substitutes; they count as extra days
		for day := range load {
			if !slices.Contains(days, day) {
				days = append(days, day)
			}
		}
		slices.Sort(days)
		loads := lo.Map(days, func(day model.Day, _ int) float64 { return load[day] })

		excess := stat.PopVariance(loads, nil) - evenVariance(len(assignments), len(days))
		if excess <= 1e-9 {
			continue
		}
		excess = math.Round(excess*1e6) / 1e6
		violations = append(violations, constraint.violation(
			lo.Map(assignments, func(assignment model.Assignment, _ int) model.SessionID { return assignment.Session }),
			entity,
			nil,
			excess,
			fmt.Sprintf("%s %s has an uneven daily load %v", constraint.entity, entity, loads),
		))
	}
	return violations
}

// evenVariance is the population variance of n sessions spread as evenly as possible over k days.
func evenVariance(n, k int) float64 {
	q, r := n/k, n%k
	loads := make([]float64, k)
	for i := range loads {
		loads[i] = float64(q)
		if i < r {
			loads[i]++
		}
	}
	return stat.PopVariance(loads, nil)
}

// schedulableDays returns, per entity, the days on which at least one of its sessions has an
// admissible slot and room under the unary hard constraints.
func (constraint *loadBalance) schedulableDays(data *model.Dataset) map[string][]model.Day {
	if cached := constraint.cache.Load(); cached != nil && cached.data == data {
		return cached.days
	}

	grid := data.Grid()
	filters := []Filter{NewAvailability().(Filter), NewCapacity().(Filter), NewRoomType().(Filter)}
	rooms := data.Rooms()

	daySets := make(map[string]map[model.Day]bool)
	for _, session := range data.Sessions() {
		course := data.CourseOf(session.Id)
		entity := constraint.resource(data, model.Assignment{Session: session.Id, Teacher: course.Teacher})
		if daySets[entity] == nil {
			daySets[entity] = make(map[model.Day]bool)
		}
		for _, slot := range grid.Slots() {
			if daySets[entity][slot.Day] {
				continue
			}
			admissible := lo.SomeBy(rooms, func(room model.Room) bool {
				candidate := model.Assignment{Session: session.Id, Slot: slot.Index, Room: room.Id, Teacher: course.Teacher}
				return lo.EveryBy(filters, func(filter Filter) bool { return filter.Admits(data, candidate) })
			})
			if admissible {
				daySets[entity][slot.Day] = true
			}
		}
	}

	days := make(map[string][]model.Day, len(daySets))
	for entity, set := range daySets {
		days[entity] = lo.Filter(grid.Days(), func(day model.Day, _ int) bool { return set[day] })
	}
	constraint.cache.Store(&daysCache{data: data, days: days})
	return days
}
