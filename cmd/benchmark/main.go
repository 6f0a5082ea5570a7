package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/internal/fixtures"
	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	"github.com/limaJavier/timetabler/pkg/model"
)

const MB float32 = 1024 * 1024

type StrategyType int

const (
	// Backtracking only
	pure StrategyType = iota
	// Backtracking followed by local search
	improved
)

var strategyTypes = map[StrategyType]string{
	pure:     "pure",
	improved: "improved",
}

type TestMetadata struct {
	Classes  int
	Seed     int64
	Sessions int
	Teachers int
	Rooms    int
}

type BenchmarkResult struct {
	Strategy StrategyType
	Test     TestMetadata
	Duration int64
	Memory   float32
	Nodes    int64
	Score    float64
	Result   string
}

func main() {
	outPtr := flag.String("out", "benchmark_results.csv", "CSV file the results are written to")
	budgetPtr := flag.Duration("budget", 30*time.Second, "time budget of each run")
	seedsPtr := flag.Int("seeds", 3, "instances generated per size")
	flag.Parse()

	sizes := []int{2, 4, 8, 16, 32}
	results := make([]BenchmarkResult, 0, len(sizes)*(*seedsPtr)*len(strategyTypes))
	for _, classes := range sizes {
		for seed := range int64(*seedsPtr) {
			for _, strategy := range []StrategyType{pure, improved} {
				fmt.Printf("Benchmarking %v classes (seed %v) with strategy \"%v\"\n", classes, seed, strategyTypes[strategy])
				result, err := measure(classes, seed, strategy, *budgetPtr)
				if err != nil {
					log.Fatalf("an error occurred at %v classes (seed %v) using strategy \"%v\": %v", classes, seed, strategyTypes[strategy], err)
				}
				results = append(results, result)
			}
		}
	}

	file, err := os.Create(*outPtr)
	if err != nil {
		log.Panicf("cannot create CSV file: %v", err)
	}
	defer file.Close()
	toCsv(file, results)
}

func measure(classes int, seed int64, strategy StrategyType, budget time.Duration) (BenchmarkResult, error) {
	ctx := model.WithSequence(context.Background(), model.NewSequence())
	data, err := fixtures.Synthetic(ctx, classes, seed)
	if err != nil {
		return BenchmarkResult{}, err
	}

	options := engine.DefaultOptions()
	options.TimeBudget = budget
	options.Seed = seed + 1
	if strategy == pure {
		options.LocalSearchIterations = 0
	}
	solver, err := engine.NewEngine(constraint.NewDefaultCatalog(constraint.DefaultWeights()), options, nil)
	if err != nil {
		return BenchmarkResult{}, err
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	result, err := solver.Solve(ctx, engine.Problem{Data: data})
	if err != nil {
		return BenchmarkResult{}, err
	}
	runtime.ReadMemStats(&after)

	return BenchmarkResult{
		Strategy: strategy,
		Test: TestMetadata{
			Classes:  classes,
			Seed:     seed,
			Sessions: len(data.Sessions()),
			Teachers: len(data.Teachers()),
			Rooms:    len(data.Rooms()),
		},
		Duration: result.Stats.Duration.Milliseconds(),
		Memory:   float32(after.TotalAlloc-before.TotalAlloc) / MB,
		Nodes:    result.Stats.Nodes,
		Score:    result.Score,
		Result:   result.Status.String(),
	}, nil
}

func toCsv(w io.Writer, results []BenchmarkResult) {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"Strategy", "Classes", "Seed", "Sessions", "Teachers", "Rooms", "Duration(ms)", "Allocated(MB)", "Nodes", "Score", "Result"}
	if err := writer.Write(header); err != nil {
		log.Panicf("cannot write CSV header: %v", err)
	}

	records := lo.Map(results, func(result BenchmarkResult, _ int) []string {
		return []string{
			strategyTypes[result.Strategy],
			fmt.Sprintf("%d", result.Test.Classes),
			fmt.Sprintf("%d", result.Test.Seed),
			fmt.Sprintf("%d", result.Test.Sessions),
			fmt.Sprintf("%d", result.Test.Teachers),
			fmt.Sprintf("%d", result.Test.Rooms),
			fmt.Sprintf("%d", result.Duration),
			fmt.Sprintf("%.1f", result.Memory),
			fmt.Sprintf("%d", result.Nodes),
			fmt.Sprintf("%.2f", result.Score),
			result.Result,
		}
	})
	if err := writer.WriteAll(records); err != nil {
		log.Panicf("cannot write CSV records: %v", err)
	}
}
