package repair

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/sat"
)

const inputsDirectory = "../../test/inputs/"

// 2025-09-01 is a Monday
var monday = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func newCatalog() constraint.Catalog {
	return constraint.NewDefaultCatalog(constraint.DefaultWeights())
}

// newDataset has two calculus teachers (T1, T3) and an algebra teacher who can also teach
// calculus (T2), two lecture rooms and two classes.
func newDataset(t *testing.T, withT3 bool) *model.Dataset {
	t.Helper()
	grid, err := model.NewGrid(model.DefaultGridConfig())
	require.NoError(t, err)
	teachers := []model.Teacher{
		{Id: "T1", Name: "Jones", Subjects: []string{"Calculus"}},
		{Id: "T2", Name: "Smith", Subjects: []string{"Algebra", "Calculus"}},
	}
	if withT3 {
		teachers = append(teachers, model.Teacher{Id: "T3", Name: "Brown", Subjects: []string{"Calculus"}})
	}
	data, err := model.NewDataset(context.Background(), grid,
		teachers,
		[]model.Room{
			{Id: "R1", Name: "A101", Capacity: 30, Type: model.Lecture},
			{Id: "R2", Name: "A102", Capacity: 30, Type: model.Lecture},
		},
		[]model.Course{
			{Id: "C1", Name: "Calculus", Teacher: "T1", Class: "A", Enrollment: 20, Sessions: 1, RoomType: model.Lecture},
			{Id: "C2", Name: "Algebra", Teacher: "T2", Class: "B", Enrollment: 20, Sessions: 1, RoomType: model.Lecture},
		},
	)
	require.NoError(t, err)
	return data
}

func newTimetable(data *model.Dataset) *model.Timetable {
	timetable := model.NewTimetable("tt", data)
	timetable.Version = 1
	timetable.Assign(model.Assignment{Id: "TT-001", Session: "C1/1", Slot: 0, Room: "R1", Teacher: "T1"})
	timetable.Assign(model.Assignment{Id: "TT-002", Session: "C2/1", Slot: 0, Room: "R2", Teacher: "T2"})
	timetable.State = model.StateComplete
	return timetable
}

func TestInvalidated(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)
	timetable := newTimetable(data)
	tuesday := model.Tuesday

	//** Act
	absence := Invalidated(timetable, TeacherAbsence{Teacher: "T1", Date: monday})
	nextDay := Invalidated(timetable, TeacherAbsence{Teacher: "T1", Date: monday.AddDate(0, 0, 1)})
	outage := Invalidated(timetable, RoomOutage{Room: "R2"})
	outageTuesday := Invalidated(timetable, RoomOutage{Room: "R2", Day: &tuesday})
	unavailable := Invalidated(timetable, TeacherUnavailable{Teacher: "T2", Interval: model.Interval{Day: model.Monday, Start: 9*60 + 30, End: 11 * 60}})

	//** Assert
	require.Len(t, absence, 1)
	assert.Equal(t, model.SessionID("C1/1"), absence[0].Session)
	assert.Empty(t, nextDay)
	require.Len(t, outage, 1)
	assert.Equal(t, model.SessionID("C2/1"), outage[0].Session)
	assert.Empty(t, outageTuesday)
	require.Len(t, unavailable, 1)
	assert.Equal(t, model.SessionID("C2/1"), unavailable[0].Session)
}

func TestRepairWithSubstitute(t *testing.T) {
	//** Arrange
	data := newDataset(t, true)
	timetable := newTimetable(data)
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	outcome, err := repairer.Repair(context.Background(), timetable, TeacherAbsence{Teacher: "T1", Date: monday}, time.Second)

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, outcome.Status, "%v", outcome.Blocking)
	assert.NoError(t, outcome.Err())
	require.Len(t, outcome.Changes, 1)
	after := outcome.Changes[0].After
	assert.Equal(t, model.Assignment{Id: "TT-001", Session: "C1/1", Slot: 0, Room: "R1", Teacher: "T3", Substitute: true}, after)
	assert.Equal(t, 2, outcome.Timetable.Version)
	assert.Equal(t, model.StateComplete, outcome.Timetable.State)
	assert.Equal(t, []string{"T1", "T3"}, outcome.Affected())
	assert.True(t, newCatalog().Evaluate(outcome.Timetable).Clean())

	// The input is untouched
	original, _ := timetable.Assignment("C1/1")
	assert.Equal(t, "T1", original.Teacher)
	assert.Equal(t, 1, timetable.Version)
}

func TestRepairUnchanged(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)
	timetable := newTimetable(data)
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	outcome, err := repairer.Repair(context.Background(), timetable, TeacherAbsence{Teacher: "T1", Date: monday.AddDate(0, 0, 2)}, time.Second)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, outcome.Status)
	assert.Same(t, timetable, outcome.Timetable)
}

func TestRepairUnresolvableWithoutEscalation(t *testing.T) {
	//** Arrange
	// T2 is the only other calculus teacher and is busy in the same slot
	data := newDataset(t, false)
	timetable := newTimetable(data)
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	outcome, err := repairer.Repair(context.Background(), timetable, TeacherAbsence{Teacher: "T1", Date: monday}, time.Second)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolvable, outcome.Status)
	require.Len(t, outcome.Blocking, 1)
	assert.Equal(t, model.SessionID("C1/1"), outcome.Blocking[0].Session)
	assert.Contains(t, outcome.Blocking[0].Constraints, "Teacher non-overlap")
	assert.Same(t, timetable, outcome.Timetable)
	assert.True(t, errors.Is(outcome.Err(), appErrors.ErrUnresolvable))
}

func TestRepairEscalatesToNeighbors(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)
	timetable := newTimetable(data)
	options := DefaultOptions()
	options.Escalate = true
	repairer := NewRepairer(newCatalog(), options, nil)

	//** Act
	outcome, err := repairer.Repair(context.Background(), timetable, TeacherAbsence{Teacher: "T1", Date: monday}, time.Second)

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, outcome.Status)
	assert.True(t, outcome.Escalated)
	calculus, _ := outcome.Timetable.Assignment("C1/1")
	assert.Equal(t, "T2", calculus.Teacher)
	assert.True(t, calculus.Substitute)
	assert.Equal(t, 0, calculus.Slot)
	algebra, _ := outcome.Timetable.Assignment("C2/1")
	assert.NotEqual(t, 0, algebra.Slot)
	assert.True(t, newCatalog().Evaluate(outcome.Timetable).Clean())
}

func TestRepairRoomOutageMovesSession(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)
	timetable := newTimetable(data)
	day := model.Monday
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	outcome, err := repairer.Repair(context.Background(), timetable, RoomOutage{Room: "R1", Day: &day}, time.Second)

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, outcome.Status)
	require.Len(t, outcome.Changes, 1)
	after := outcome.Changes[0].After
	assert.Equal(t, "T1", after.Teacher)
	assert.Equal(t, "R1", after.Room)
	assert.NotEqual(t, model.Monday, data.Grid().Slot(after.Slot).Day)
	// The other session is pinned
	algebra, _ := outcome.Timetable.Assignment("C2/1")
	assert.Equal(t, model.Assignment{Id: "TT-002", Session: "C2/1", Slot: 0, Room: "R2", Teacher: "T2"}, algebra)
}

func TestScenarioAbsenceWithoutSubstitute(t *testing.T) {
	//** Arrange
	input, err := model.InputFromFile(inputsDirectory + "demo.json")
	require.NoError(t, err)
	data, err := input.Dataset(context.Background(), model.DefaultGridConfig())
	require.NoError(t, err)
	solver, err := engine.NewEngine(newCatalog(), engine.DefaultOptions(), nil)
	require.NoError(t, err)
	result, err := solver.Solve(context.Background(), engine.Problem{Data: data})
	require.NoError(t, err)
	require.Equal(t, engine.StatusComplete, result.Status)
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	// Prof. Jones teaches on Monday and nobody else is qualified for Calculus
	outcome, err := repairer.Repair(context.Background(), result.Timetable, TeacherAbsence{Teacher: "TCH-MT-001", Date: monday}, time.Second)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolvable, outcome.Status)
	require.Len(t, outcome.Blocking, 1)
	assert.Equal(t, model.SessionID("CRS-MT-001/1"), outcome.Blocking[0].Session)
	assert.Equal(t, "TCH-MT-001", outcome.Blocking[0].Teacher)
	assert.NotEmpty(t, outcome.Blocking[0].Constraints)
	assert.Same(t, result.Timetable, outcome.Timetable)
}

func TestRepairRejectsInvalidInput(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)
	timetable := newTimetable(data)
	partial := model.NewTimetable("partial", data)
	partial.Assign(model.Assignment{Session: "C1/1", Slot: 0, Room: "R1", Teacher: "T1"})
	repairer := NewRepairer(newCatalog(), DefaultOptions(), nil)

	//** Act
	_, unknown := repairer.Repair(context.Background(), timetable, RoomOutage{Room: "R9"}, time.Second)
	_, incomplete := repairer.Repair(context.Background(), partial, RoomOutage{Room: "R1"}, time.Second)

	//** Assert
	assert.True(t, errors.Is(unknown, appErrors.ErrValidation))
	assert.True(t, errors.Is(incomplete, appErrors.ErrValidation))
}

func TestParseDelta(t *testing.T) {
	//** Act
	absence, absenceErr := ParseDelta("absence:T1@2025-09-05")
	outage, outageErr := ParseDelta("outage:R1@tue")
	week, weekErr := ParseDelta("outage:R1")
	unavailable, unavailableErr := ParseDelta("unavailable:T2@Monday:9-12")
	_, malformedErr := ParseDelta("holiday:T1")

	//** Assert
	require.NoError(t, absenceErr)
	assert.Equal(t, model.Friday, absence.(TeacherAbsence).Weekday())
	require.NoError(t, outageErr)
	assert.Equal(t, model.Tuesday, *outage.(RoomOutage).Day)
	require.NoError(t, weekErr)
	assert.Nil(t, week.(RoomOutage).Day)
	require.NoError(t, unavailableErr)
	assert.Equal(t, model.Interval{Day: model.Monday, Start: 9 * 60, End: 12 * 60}, unavailable.(TeacherUnavailable).Interval)
	assert.True(t, errors.Is(malformedErr, appErrors.ErrValidation))
}

func TestLiveSerializesRepairs(t *testing.T) {
	//** Arrange
	data := newDataset(t, true)
	live := NewLive(newTimetable(data), NewRepairer(newCatalog(), DefaultOptions(), nil))
	day := model.Monday

	//** Act
	var waitGroup sync.WaitGroup
	outcomes := make([]*Outcome, 2)
	errs := make([]error, 2)
	deltas := []Delta{TeacherAbsence{Teacher: "T1", Date: monday}, RoomOutage{Room: "R2", Day: &day}}
	for i, delta := range deltas {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			outcomes[i], errs[i] = live.Repair(context.Background(), delta, time.Second)
		}()
	}
	waitGroup.Wait()

	//** Assert
	for i := range deltas {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusRepaired, outcomes[i].Status)
	}
	current := live.Current()
	assert.Equal(t, 3, current.Version)
	assert.True(t, newCatalog().Evaluate(current).Clean())
	for _, delta := range deltas {
		assert.Empty(t, Invalidated(current, delta))
	}
}

func TestLiveKeepsVersionOnCancellation(t *testing.T) {
	//** Arrange
	data := newDataset(t, true)
	live := NewLive(newTimetable(data), NewRepairer(newCatalog(), DefaultOptions(), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	//** Act
	_, err := live.Repair(ctx, TeacherAbsence{Teacher: "T1", Date: monday}, time.Second)

	//** Assert
	assert.True(t, errors.Is(err, appErrors.ErrCancelled), "%v", err)
	assert.Equal(t, 1, live.Current().Version)
	calculus, _ := live.Current().Assignment("C1/1")
	assert.Equal(t, "T1", calculus.Teacher)
}

func TestLiveKeepsEarlierAbsences(t *testing.T) {
	//** Arrange
	data := newDataset(t, true)
	live := NewLive(newTimetable(data), NewRepairer(newCatalog(), DefaultOptions(), nil))
	first, err := live.Repair(context.Background(), TeacherAbsence{Teacher: "T1", Date: monday}, time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, first.Status)

	//** Act
	// T2 is busy in the slot and T1 is still absent
	second, err := live.Repair(context.Background(), TeacherAbsence{Teacher: "T3", Date: monday}, time.Second)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolvable, second.Status)
	require.Len(t, second.Blocking, 1)
	assert.Equal(t, model.SessionID("C1/1"), second.Blocking[0].Session)
	assert.Contains(t, second.Blocking[0].Constraints, "Teacher absence")
	assert.Equal(t, 2, live.Current().Version)
	calculus, _ := live.Current().Assignment("C1/1")
	assert.Equal(t, "T3", calculus.Teacher)
	assert.Len(t, live.Active(), 1)
}

func TestLiveOutageHonorsEarlierAbsence(t *testing.T) {
	//** Arrange
	data := newDataset(t, true)
	live := NewLive(newTimetable(data), NewRepairer(newCatalog(), DefaultOptions(), nil))
	absence := TeacherAbsence{Teacher: "T1", Date: monday}
	first, err := live.Repair(context.Background(), absence, time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, first.Status)
	day := model.Monday

	//** Act
	outcome, err := live.Repair(context.Background(), RoomOutage{Room: "R1", Day: &day}, time.Second)

	//** Assert
	require.NoError(t, err)
	require.Equal(t, StatusRepaired, outcome.Status)
	assert.Empty(t, Invalidated(outcome.Timetable, absence))
	// The substitute cannot move and R2 is taken, so T1 teaches on another day
	calculus, _ := outcome.Timetable.Assignment("C1/1")
	assert.Equal(t, "T1", calculus.Teacher)
	assert.False(t, calculus.Substitute)
	assert.NotEqual(t, model.Monday, data.Grid().Slot(calculus.Slot).Day)
	assert.True(t, newCatalog().Evaluate(outcome.Timetable).Clean())
}

func TestMinimalConflict(t *testing.T) {
	//** Arrange
	input, err := model.InputFromFile(inputsDirectory + "clash.yaml")
	require.NoError(t, err)
	data, err := input.Dataset(context.Background(), model.DefaultGridConfig())
	require.NoError(t, err)

	//** Act
	conflict, err := MinimalConflict(context.Background(), newCatalog(), engine.Problem{Data: data}, sat.NewGiniSolver())

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, []model.SessionID{"CRS-MT-001/1", "CRS-MT-002/1"}, conflict)
}

func TestMinimalConflictOfFeasibleProblem(t *testing.T) {
	//** Arrange
	data := newDataset(t, false)

	//** Act
	conflict, err := MinimalConflict(context.Background(), newCatalog(), engine.Problem{Data: data}, sat.NewGiniSolver())

	//** Assert
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestMinimalConflictDropsUninvolvedSessions(t *testing.T) {
	//** Arrange
	// Three sessions of class A fit in two slots only; class B is unconstrained
	grid, err := model.NewGrid(model.GridConfig{Days: []model.Day{model.Monday}, DayStart: 9 * 60, PeriodMinutes: 55, BreakMinutes: 5, PeriodsPerDay: 2})
	require.NoError(t, err)
	data, err := model.NewDataset(context.Background(), grid,
		[]model.Teacher{{Id: "T1", Name: "Jones"}, {Id: "T2", Name: "Smith"}},
		[]model.Room{{Id: "R1", Name: "A101", Capacity: 30, Type: model.Lecture}, {Id: "R2", Name: "A102", Capacity: 30, Type: model.Lecture}, {Id: "R3", Name: "A103", Capacity: 30, Type: model.Lecture}},
		[]model.Course{
			{Id: "C1", Name: "Calculus", Teacher: "T1", Class: "A", Enrollment: 10, Sessions: 2, RoomType: model.Lecture},
			{Id: "C2", Name: "Algebra", Teacher: "T2", Class: "A", Enrollment: 10, Sessions: 1, RoomType: model.Lecture},
			{Id: "C3", Name: "Algebra", Teacher: "T2", Class: "B", Enrollment: 10, Sessions: 1, RoomType: model.Lecture},
		},
	)
	require.NoError(t, err)

	//** Act
	conflict, err := MinimalConflict(context.Background(), newCatalog(), engine.Problem{Data: data}, sat.NewGiniSolver())

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, []model.SessionID{"C1/1", "C1/2", "C2/1"}, conflict)
}
