package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/limaJavier/timetabler/pkg/errors"
)

const inputsDirectory = "../../test/inputs/"

func TestParseIntervals(t *testing.T) {
	//** Arrange
	compact := "Monday:9-12, tue:09:30-12"

	//** Act
	intervals, err := ParseIntervals(compact)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, []Interval{
		{Day: Monday, Start: 9 * 60, End: 12 * 60},
		{Day: Tuesday, Start: 9*60 + 30, End: 12 * 60},
	}, intervals)

	_, err = ParseIntervals("Funday:9-12")
	assert.Error(t, err)
	_, err = ParseIntervals("Monday:9")
	assert.Error(t, err)
}

func TestGrid(t *testing.T) {
	//** Arrange
	grid, err := NewGrid(DefaultGridConfig())
	require.NoError(t, err)

	//** Act
	monday := grid.SlotsOn(Monday)
	tuesdayThird := grid.Slot(grid.Index(1, 2))

	//** Assert
	assert.Equal(t, 40, grid.Len())
	assert.Len(t, monday, 8)
	assert.Equal(t, Minute(9*60), monday[0].Start)
	assert.Equal(t, Minute(9*60+55), monday[0].End)
	assert.Equal(t, Minute(10*60), monday[1].Start)
	assert.Equal(t, Tuesday, tuesdayThird.Day)
	assert.Equal(t, 2, tuesdayThird.Period)
	assert.True(t, grid.Adjacent(0, 1))
	assert.False(t, grid.Adjacent(7, 8)) // last Monday period and first Tuesday period

	dayPosition, period := grid.Attributes(tuesdayThird.Index)
	assert.Equal(t, 1, dayPosition)
	assert.Equal(t, 2, period)

	_, err = NewGrid(GridConfig{Days: []Day{Monday}, DayStart: 23 * 60, PeriodMinutes: 60, PeriodsPerDay: 2})
	assert.Error(t, err)
	_, err = NewGrid(GridConfig{Days: []Day{Monday, Monday}, PeriodMinutes: 60, PeriodsPerDay: 2})
	assert.Error(t, err)
}

func TestDemoInput(t *testing.T) {
	//** Arrange
	input, err := InputFromJson(inputsDirectory + "demo.json")
	require.NoError(t, err)

	//** Act
	data, err := input.Dataset(context.Background(), DefaultGridConfig())

	//** Assert
	require.NoError(t, err)

	jones, ok := data.Teacher("TCH-MT-001")
	require.True(t, ok)
	assert.Equal(t, "Prof. Jones", jones.Name)
	assert.Equal(t, []string{"Calculus", "Linear Algebra"}, jones.Subjects)
	assert.Equal(t, Preferences{NoBackToBack: true, MaxSessionsPerDay: 5}, jones.Preferences)
	assert.Len(t, jones.Availability, 2)

	calculus, ok := data.Course("CRS-MT-001")
	require.True(t, ok)
	assert.Equal(t, "TCH-MT-001", calculus.Teacher)
	assert.Equal(t, "Calculus", calculus.Subject)

	linearAlgebra, ok := data.Course("CRS-MT-002")
	require.True(t, ok)
	assert.Equal(t, "TCH-MT-002", linearAlgebra.Teacher)

	assert.Len(t, data.Sessions(), 2)
	assert.Equal(t, []string{"MT"}, data.Departments())

	free := data.FreeIntervals("TCH-MT-002", Monday)
	assert.Equal(t, []Interval{{Day: Monday, Start: 13 * 60, End: 16 * 60}}, free)
	assert.Empty(t, data.FreeIntervals("TCH-MT-002", Friday))
}

func TestYamlInput(t *testing.T) {
	//** Arrange
	input, err := InputFromFile(inputsDirectory + "clash.yaml")
	require.NoError(t, err)

	//** Act
	data, err := input.Dataset(context.Background(), DefaultGridConfig())

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, 1, data.Grid().Len())
	room, ok := data.Room("ROOM-A-001")
	require.True(t, ok)
	assert.Equal(t, Lecture, room.Type)
	assert.Equal(t, []string{"TCH-MT-001"}, data.Qualified("Statistics", ""))
	assert.Empty(t, data.Qualified("Statistics", "TCH-MT-001"))
}

func TestDecodeInputRejectsUnknownFields(t *testing.T) {
	//** Arrange
	raw := map[string]any{
		"teachers": []any{map[string]any{"name": "Prof. Jones", "salary": 10}},
	}

	//** Act
	_, err := DecodeInput(raw)

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDatasetValidation(t *testing.T) {
	//** Arrange
	grid, err := NewGrid(DefaultGridConfig())
	require.NoError(t, err)

	teachers := []Teacher{{
		Id:   "T1",
		Name: "Overlapping",
		Availability: []Interval{
			{Day: Monday, Start: 9 * 60, End: 12 * 60},
			{Day: Monday, Start: 11 * 60, End: 13 * 60},
		},
	}}
	rooms := []Room{
		{Id: "R1", Name: "Broken", Capacity: 0, Type: Lecture},
		{Id: "R2", Name: "Small", Capacity: 10, Type: Lecture},
	}
	courses := []Course{
		{Id: "C1", Name: "Crowded", Teacher: "T1", Class: "A", Enrollment: 40, Sessions: 1, RoomType: Lecture},
		{Id: "C2", Name: "Ghost", Teacher: "nobody", Class: "A", Enrollment: 5, Sessions: 1, RoomType: Lecture},
		{Id: "C3", Name: "Nowhere", Teacher: "T1", Class: "A", Enrollment: 5, Sessions: 1, RoomType: Lab},
	}

	//** Act
	_, err = NewDataset(context.Background(), grid, teachers, rooms, courses)

	//** Assert
	require.ErrorIs(t, err, appErrors.ErrValidation)
	var issues Issues
	require.ErrorAs(t, err, &issues)

	messages := make(map[string]bool)
	for _, issue := range issues {
		messages[issue.Entity+"/"+issue.Id+"/"+issue.Field] = true
	}
	assert.True(t, messages["teacher/T1/availability"])
	assert.True(t, messages["room/R1/capacity"])
	assert.True(t, messages["course/C1/enrollment"])
	assert.True(t, messages["course/C2/teacher"])
	assert.True(t, messages["course/C3/enrollment"])
}

func TestDatasetIsCopiedOnRead(t *testing.T) {
	//** Arrange
	grid, _ := NewGrid(DefaultGridConfig())
	teachers := []Teacher{{Id: "T1", Name: "Jones", Subjects: []string{"Calculus"}}}
	rooms := []Room{{Id: "R1", Name: "A101", Capacity: 30, Type: Lecture}}
	courses := []Course{{Id: "C1", Name: "Calculus", Teacher: "T1", Class: "A", Enrollment: 20, Sessions: 3, RoomType: Lecture}}

	data, err := NewDataset(context.Background(), grid, teachers, rooms, courses)
	require.NoError(t, err)

	//** Act
	teachers[0].Subjects[0] = "Mutated"
	teacher, _ := data.Teacher("T1")
	teacher.Subjects[0] = "Mutated again"

	//** Assert
	again, _ := data.Teacher("T1")
	assert.Equal(t, []string{"Calculus"}, again.Subjects)
	assert.Equal(t, []SessionID{"C1/1", "C1/2", "C1/3"}, data.SessionsOf("C1"))
}

func TestSequencePerContext(t *testing.T) {
	//** Arrange
	first := WithSequence(context.Background(), NewSequence())
	second := WithSequence(context.Background(), NewSequence())

	//** Act
	a := SequenceFrom(first).Next("TT", "MT")
	b := SequenceFrom(first).Next("TT", "MT")
	c := SequenceFrom(second).Next("TT", "MT")

	//** Assert
	assert.Equal(t, "TT-MT-001", a)
	assert.Equal(t, "TT-MT-002", b)
	assert.Equal(t, "TT-MT-001", c)
}

func TestTimetableDocument(t *testing.T) {
	//** Arrange
	grid, _ := NewGrid(DefaultGridConfig())
	data, err := NewDataset(context.Background(), grid,
		[]Teacher{{Id: "T1", Name: "Jones"}},
		[]Room{{Id: "R1", Name: "A101", Capacity: 30, Type: Lecture}},
		[]Course{{Id: "C1", Name: "Calculus", Teacher: "T1", Class: "A", Enrollment: 20, Sessions: 2, RoomType: Lecture}},
	)
	require.NoError(t, err)

	timetable := NewTimetable("tt", data)
	timetable.Assign(Assignment{Session: "C1/1", Slot: 3, Room: "R1", Teacher: "T1"})

	//** Act
	clone := timetable.Clone()
	clone.Assign(Assignment{Session: "C1/2", Slot: 1, Room: "R1", Teacher: "T1"})
	restored, err := FromDocument(clone.Document(), data)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, StatePartial, timetable.State)
	assert.Equal(t, []SessionID{"C1/2"}, timetable.Unassigned())
	assert.True(t, clone.Covers())
	assert.Equal(t, clone.Assignments(), restored.Assignments())
	assert.Equal(t, SessionID("C1/2"), restored.Assignments()[0].Session)

	_, err = FromDocument(Document{State: "complete", Assignments: []Assignment{{Session: "C9/1"}}}, data)
	assert.Error(t, err)
}
