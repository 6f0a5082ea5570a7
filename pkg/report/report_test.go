package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
)

const inputsDirectory = "../../test/inputs/"

func solve(t *testing.T, file string) *engine.Result {
	t.Helper()
	input, err := model.InputFromFile(inputsDirectory + file)
	require.NoError(t, err)
	data, err := input.Dataset(context.Background(), model.DefaultGridConfig())
	require.NoError(t, err)
	solver, err := engine.NewEngine(constraint.NewDefaultCatalog(constraint.DefaultWeights()), engine.DefaultOptions(), nil)
	require.NoError(t, err)
	result, err := solver.Solve(context.Background(), engine.Problem{Data: data, TimetableId: "tt"})
	require.NoError(t, err)
	return result
}

func TestExplainComplete(t *testing.T) {
	//** Arrange
	result := solve(t, "demo.json")

	//** Act
	report := Explain(result)

	//** Assert
	assert.Equal(t, "schedule", report.Operation)
	assert.Equal(t, "complete", report.Status)
	assert.Equal(t, "tt", report.TimetableId)
	assert.Len(t, report.Rows, 2)
	assert.Empty(t, report.Hard)
	assert.Empty(t, report.Conflict)
	assert.Contains(t, report.Summary, "all 2 session(s) scheduled")
}

func TestExplainInfeasible(t *testing.T) {
	//** Arrange
	result := solve(t, "clash.yaml")

	//** Act
	report := Explain(result)

	//** Assert
	assert.Equal(t, "infeasible", report.Status)
	require.Len(t, report.Conflict, 2)
	assert.ElementsMatch(t, []string{"Calculus", "Statistics"}, []string{report.Conflict[0].Name, report.Conflict[1].Name})
	assert.Equal(t, "TCH-MT-001", report.Conflict[0].Teacher)
	assert.Contains(t, report.Summary, "TCH-MT-001")
	assert.Contains(t, report.Summary, "Teacher non-overlap")
}

func TestExplainRepair(t *testing.T) {
	//** Arrange
	result := solve(t, "demo.json")
	repairer := repair.NewRepairer(constraint.NewDefaultCatalog(constraint.DefaultWeights()), repair.DefaultOptions(), nil)
	outcome, err := repairer.Repair(context.Background(), result.Timetable, repair.TeacherAbsence{Teacher: "TCH-MT-001", Date: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}, time.Second)
	require.NoError(t, err)

	//** Act
	report := Explain(outcome)

	//** Assert
	assert.Equal(t, "repair", report.Operation)
	assert.Equal(t, "unresolvable", report.Status)
	require.Len(t, report.Unresolved, 1)
	assert.Equal(t, model.SessionID("CRS-MT-001/1"), report.Unresolved[0].Session.Id)
	assert.Contains(t, report.Summary, "CRS-MT-001/1")
}

func TestExplainTimetable(t *testing.T) {
	//** Arrange
	result := solve(t, "demo.json")
	timetable := result.Timetable.Clone()
	calculus, _ := timetable.Assignment("CRS-MT-001/1")
	algebra, _ := timetable.Assignment("CRS-MT-002/1")
	algebra.Slot = calculus.Slot
	timetable.Assign(algebra)

	//** Act
	report := ExplainTimetable(timetable, constraint.NewDefaultCatalog(constraint.DefaultWeights()))

	//** Assert
	assert.Equal(t, "verify", report.Operation)
	overlap, ok := lo.Find(report.Hard, func(entry Entry) bool { return entry.Constraint == "Class non-overlap" })
	require.True(t, ok)
	assert.Len(t, overlap.Sessions, 2)
	assert.Contains(t, report.Summary, "hard violation(s)")
}

func TestExplainUnknown(t *testing.T) {
	//** Act
	report := Explain(42)

	//** Assert
	assert.Equal(t, "unknown", report.Status)
}

func TestRenderers(t *testing.T) {
	//** Arrange
	color.NoColor = true
	report := Explain(solve(t, "clash.yaml"))
	var table, document bytes.Buffer

	//** Act
	tableErr := RenderTable(&table, report)
	jsonErr := RenderJSON(&document, report)

	//** Assert
	require.NoError(t, tableErr)
	require.NoError(t, jsonErr)
	assert.Contains(t, table.String(), "SCHEDULE tt [infeasible]")
	assert.Contains(t, table.String(), "CRS-MT-002/1")

	var decoded Report
	require.NoError(t, json.Unmarshal(document.Bytes(), &decoded))
	assert.Equal(t, report.Summary, decoded.Summary)
	assert.Len(t, decoded.Conflict, 2)
}
