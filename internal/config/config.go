package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/internal/metrics"
	"github.com/limaJavier/timetabler/internal/notify"
	"github.com/limaJavier/timetabler/internal/store"
	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
)

// EnvPrefix marks environment overrides: SCHED_ENGINE__SEED=7 sets engine.seed.
const EnvPrefix = "SCHED_"

type Config struct {
	Grid    model.GridConfig   `koanf:"grid"`
	Weights constraint.Weights `koanf:"weights"`
	Engine  engine.Options     `koanf:"engine"`
	Repair  repair.Options     `koanf:"repair"`
	Logging logger.Options     `koanf:"logging"`
	Store   store.Config       `koanf:"store"`
	MQTT    notify.MQTTConfig  `koanf:"mqtt"`
	Metrics metrics.Config     `koanf:"metrics"`
}

// Load reads the defaults, then the YAML or JSON file at path (skipped when path is empty),
// then the environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("default %s: %w", key, err)
		}
	}

	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, appErrors.Clonef(appErrors.ErrValidation, "unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid configuration")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func defaults() map[string]any {
	grid := model.DefaultGridConfig()
	weights := constraint.DefaultWeights()
	engineOptions := engine.DefaultOptions()
	repairOptions := repair.DefaultOptions()
	return map[string]any{
		"grid.days":                      lo.Map(grid.Days, func(day model.Day, _ int) string { return day.String() }),
		"grid.day_start":                 grid.DayStart.String(),
		"grid.period_minutes":            grid.PeriodMinutes,
		"grid.break_minutes":             grid.BreakMinutes,
		"grid.periods_per_day":           grid.PeriodsPerDay,
		"weights.back_to_back":           weights.BackToBack,
		"weights.max_daily":              weights.MaxDaily,
		"weights.class_load":             weights.ClassLoad,
		"weights.teacher_load":           weights.TeacherLoad,
		"engine.time_budget":             engineOptions.TimeBudget.String(),
		"engine.max_nodes":               engineOptions.MaxNodes,
		"engine.local_search_iterations": engineOptions.LocalSearchIterations,
		"engine.plateau_limit":           engineOptions.PlateauLimit,
		"engine.chains":                  engineOptions.Chains,
		"engine.seed":                    engineOptions.Seed,
		"engine.workers":                 engineOptions.Workers,
		"repair.time_budget":             repairOptions.TimeBudget.String(),
		"repair.escalate":                repairOptions.Escalate,
		"repair.seed":                    repairOptions.Seed,
		"logging.level":                  "info",
	}
}

// SetDefaults fills the sections whose defaults depend on other fields.
func (config *Config) SetDefaults() {
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.MQTT.Enabled() {
		config.MQTT.SetDefaults()
	}
	config.Metrics.SetDefaults()
}

func (config *Config) Validate() error {
	if _, err := model.NewGrid(config.Grid); err != nil {
		return appErrors.Wrap(err, appErrors.CodeValidation, "invalid grid configuration")
	} else if err := config.Weights.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeValidation, "invalid weights configuration")
	} else if err := config.Engine.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeValidation, "invalid engine configuration")
	} else if config.Repair.TimeBudget < 0 {
		return appErrors.Clonef(appErrors.ErrValidation, "repair time budget must not be negative: %v", config.Repair.TimeBudget)
	} else if _, err := zerolog.ParseLevel(strings.ToLower(config.Logging.Level)); err != nil {
		return appErrors.Wrap(err, appErrors.CodeValidation, "invalid logging configuration")
	} else if err := config.MQTT.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeValidation, "invalid mqtt configuration")
	}
	return nil
}
