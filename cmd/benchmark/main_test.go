package main

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure(t *testing.T) {
	result, err := measure(2, 1, improved, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Result)
	assert.Equal(t, 20, result.Test.Sessions)
	assert.Positive(t, result.Nodes)
}

func TestToCsv(t *testing.T) {
	var out bytes.Buffer
	toCsv(&out, []BenchmarkResult{{Strategy: pure, Test: TestMetadata{Classes: 2, Sessions: 20}, Duration: 12, Result: "complete"}})

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Strategy", records[0][0])
	assert.Equal(t, []string{"pure", "2", "0", "20", "0", "0", "12", "0.0", "0", "0.00", "complete"}, records[1])
}
