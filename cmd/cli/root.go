package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/limaJavier/timetabler/internal/config"
	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/internal/metrics"
	"github.com/limaJavier/timetabler/internal/notify"
	"github.com/limaJavier/timetabler/internal/store"
	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/report"
	"github.com/limaJavier/timetabler/pkg/timetabler"
)

var (
	cfgPath string
	envFile string
	format  string
	outPath string
)

var rootCmd = &cobra.Command{
	Use:           "timetabler",
	Short:         "Build and repair weekly academic timetables",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if format != "table" && format != "json" {
			return fmt.Errorf("unknown format %q: expected table or json", format)
		}
		// A missing .env file is not an error
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with SCHED_ environment overrides")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "report format: table or json")
	rootCmd.PersistentFlags().StringVarP(&outPath, "out", "o", "", "write the resulting timetable document to this file")
}

// app is everything a command needs, built from the configuration.
type app struct {
	config     *config.Config
	timetabler timetabler.Timetabler
	catalog    constraint.Catalog
	log        logger.Logger
	registry   *prometheus.Registry
	closers    []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &app{
		config:   cfg,
		catalog:  constraint.NewDefaultCatalog(cfg.Weights),
		log:      logger.NewZerologLogger("cli", cfg.Logging),
		registry: prometheus.NewRegistry(),
	}

	recorder, err := metrics.NewPromRecorder(cfg.Metrics, a.registry)
	if err != nil {
		return nil, err
	}
	deps := timetabler.Dependencies{Metrics: recorder, Log: a.log}

	if cfg.Store.Enabled() {
		timetableStore, err := store.NewSQLiteStore(cfg.Store.Path, a.catalog)
		if err != nil {
			return nil, err
		}
		deps.Store = timetableStore
		a.closers = append(a.closers, func() { _ = timetableStore.Close() })
	}

	notifiers := notify.Multi{notify.NewLogNotifier(a.log)}
	if cfg.MQTT.Enabled() {
		mqttNotifier, err := notify.NewMQTTNotifier(cfg.MQTT)
		if err != nil {
			a.close()
			return nil, err
		}
		notifiers = append(notifiers, mqttNotifier)
		a.closers = append(a.closers, mqttNotifier.Close)
	}
	deps.Notifier = notifiers

	a.timetabler, err = timetabler.NewTimetabler(timetabler.Options{
		Engine:           cfg.Engine,
		Repair:           cfg.Repair,
		Weights:          cfg.Weights,
		MinimalConflicts: true,
	}, deps)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.config.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.config.Metrics.Textfile, a.registry); err != nil {
			a.log.Warnf("%v", err)
		}
	}
	for _, closer := range a.closers {
		closer()
	}
}

func (a *app) dataset(ctx context.Context, path string) (*model.Dataset, error) {
	input, err := model.InputFromFile(path)
	if err != nil {
		return nil, err
	}
	return input.Dataset(ctx, a.config.Grid)
}

// timetable reads a timetable document from a file, or the latest stored version of an id.
func (a *app) timetable(ctx context.Context, path, id string, data *model.Dataset) (*model.Timetable, error) {
	if path == "" {
		return a.timetabler.Open(ctx, id, data)
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var document model.Document
	if err := json.Unmarshal(bytes, &document); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return model.FromDocument(document, data)
}

func render(w io.Writer, explained report.Report) error {
	if format == "json" {
		return report.RenderJSON(w, explained)
	}
	return report.RenderTable(w, explained)
}

func save(timetable *model.Timetable) error {
	if outPath == "" {
		return nil
	}
	bytes, err := json.MarshalIndent(timetable.Document(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, bytes, 0o644)
}
