package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/limaJavier/timetabler/pkg/engine"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
	"github.com/limaJavier/timetabler/pkg/report"
	"github.com/limaJavier/timetabler/pkg/timetabler"
)

var version = "dev"

var (
	inputPath     string
	timetablePath string
	timetableId   string
	seed          int64
	budget        time.Duration
	deltaSpec     string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Build a timetable for a dataset",
	RunE:  schedule,
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair a timetable after a teacher absence or a room outage",
	Long: `Repair a timetable after a change of facts. Deltas are written as
  absence:TEACHER@2006-01-02
  outage:ROOM[@Day]
  unavailable:TEACHER@Day:9-12`,
	RunE: repairTimetable,
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Verify a timetable and explain its violations",
	RunE:  explain,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{scheduleCmd, repairCmd, explainCmd} {
		cmd.Flags().StringVarP(&inputPath, "input", "i", "", "dataset file (JSON or YAML)")
		_ = cmd.MarkFlagRequired("input")
	}
	scheduleCmd.Flags().StringVar(&timetableId, "id", "", "timetable id; generated when empty")
	scheduleCmd.Flags().Int64Var(&seed, "seed", 0, "search seed; the configured seed when zero")
	scheduleCmd.Flags().DurationVar(&budget, "budget", 0, "time budget; the configured budget when zero")

	for _, cmd := range []*cobra.Command{repairCmd, explainCmd} {
		cmd.Flags().StringVarP(&timetablePath, "timetable", "t", "", "timetable document; the stored timetable --id is used when empty")
		cmd.Flags().StringVar(&timetableId, "id", "", "id of a stored timetable")
		cmd.MarkFlagsOneRequired("timetable", "id")
	}
	repairCmd.Flags().StringVarP(&deltaSpec, "delta", "d", "", "change of facts to repair")
	repairCmd.Flags().DurationVar(&budget, "budget", 0, "time budget; the configured budget when zero")
	_ = repairCmd.MarkFlagRequired("delta")

	rootCmd.AddCommand(scheduleCmd, repairCmd, explainCmd, versionCmd)
}

func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = model.WithSequence(ctx, model.NewSequence())

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	return run(ctx, a)
}

func schedule(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		data, err := a.dataset(ctx, inputPath)
		if err != nil {
			return err
		}
		result, err := a.timetabler.Schedule(ctx, timetabler.Request{
			Dataset:     data,
			Budget:      budget,
			Seed:        seed,
			TimetableId: timetableId,
		})
		if err != nil {
			return err
		}
		if err := render(cmd.OutOrStdout(), a.timetabler.Explain(result)); err != nil {
			return err
		}
		if err := save(result.Timetable); err != nil {
			return err
		}

		switch result.Status {
		case engine.StatusComplete:
			return exitError{exitComplete}
		case engine.StatusInfeasible:
			return exitError{exitInfeasible}
		}
		return exitError{exitIncomplete}
	})
}

func repairTimetable(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		delta, err := repair.ParseDelta(deltaSpec)
		if err != nil {
			return err
		}
		data, err := a.dataset(ctx, inputPath)
		if err != nil {
			return err
		}
		current, err := a.timetable(ctx, timetablePath, timetableId, data)
		if err != nil {
			return err
		}
		if budget == 0 {
			budget = a.config.Repair.TimeBudget
		}

		outcome, err := a.timetabler.Repair(ctx, current, delta, budget)
		if err != nil {
			return err
		}
		if err := render(cmd.OutOrStdout(), a.timetabler.Explain(outcome)); err != nil {
			return err
		}
		if outcome.Status != repair.StatusRepaired {
			if outcome.Status == repair.StatusUnchanged {
				return exitError{exitComplete}
			}
			return exitError{exitIncomplete}
		}
		if err := save(outcome.Timetable); err != nil {
			return err
		}
		return exitError{exitComplete}
	})
}

func explain(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		data, err := a.dataset(ctx, inputPath)
		if err != nil {
			return err
		}
		current, err := a.timetable(ctx, timetablePath, timetableId, data)
		if err != nil {
			return err
		}
		if err := render(cmd.OutOrStdout(), report.ExplainTimetable(current, a.catalog)); err != nil {
			return err
		}
		if !a.timetabler.Verify(current) {
			return exitError{exitNotVerified}
		}
		return exitError{exitComplete}
	})
}
