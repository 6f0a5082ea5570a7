package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/timetabler/pkg/report"
)

const inputsDirectory = "../../test/inputs/"

func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	// Flags keep their values between executions
	inputPath, timetablePath, timetableId, deltaSpec, outPath = "", "", "", "", ""
	seed, budget, format = 0, 0, "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	var exit exitError
	if errors.As(err, &exit) {
		return out.String(), exit.code
	}
	require.NoError(t, err)
	return out.String(), 0
}

func TestScheduleRepairExplain(t *testing.T) {
	//** Arrange
	document := filepath.Join(t.TempDir(), "demo.json")

	//** Act
	scheduled, scheduleCode := execute(t, "schedule", "-i", inputsDirectory+"demo.json", "--id", "demo", "-o", document, "-f", "json")
	_, explainCode := execute(t, "explain", "-i", inputsDirectory+"demo.json", "-t", document)
	repaired, repairCode := execute(t, "repair", "-i", inputsDirectory+"demo.json", "-t", document, "-d", "absence:TCH-MT-001@2025-09-01", "-f", "json")

	//** Assert
	assert.Equal(t, exitComplete, scheduleCode)
	var scheduleReport report.Report
	require.NoError(t, json.Unmarshal([]byte(scheduled), &scheduleReport))
	assert.Equal(t, "complete", scheduleReport.Status)
	assert.Equal(t, "demo", scheduleReport.TimetableId)

	assert.Equal(t, exitComplete, explainCode)

	assert.Equal(t, exitIncomplete, repairCode)
	var repairReport report.Report
	require.NoError(t, json.Unmarshal([]byte(repaired), &repairReport))
	assert.Equal(t, "unresolvable", repairReport.Status)
}

func TestScheduleInfeasible(t *testing.T) {
	//** Act
	out, code := execute(t, "schedule", "-i", inputsDirectory+"clash.yaml", "-f", "table")

	//** Assert
	assert.Equal(t, exitInfeasible, code)
	assert.Contains(t, out, "TCH-MT-001")
}

func TestVersion(t *testing.T) {
	//** Act
	out, code := execute(t, "version")

	//** Assert
	assert.Zero(t, code)
	assert.Equal(t, "dev\n", out)
}
