package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	//** Act
	config, err := Load("")

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, model.DefaultGridConfig(), config.Grid)
	assert.Equal(t, constraint.DefaultWeights(), config.Weights)
	assert.Equal(t, engine.DefaultOptions(), config.Engine)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "timetabler", config.Metrics.Namespace)
	assert.False(t, config.Store.Enabled())
	assert.False(t, config.MQTT.Enabled())
}

func TestLoadYaml(t *testing.T) {
	//** Arrange
	path := writeFile(t, "config.yaml", `
grid:
  days: [Monday, Wednesday]
  day_start: "8:30"
  periods_per_day: 4
weights:
  back_to_back: 3
engine:
  time_budget: 2s
  chains: 1
repair:
  escalate: true
store:
  path: timetables.db
mqtt:
  broker: tcp://localhost:1883
`)

	//** Act
	config, err := Load(path)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, []model.Day{model.Monday, model.Wednesday}, config.Grid.Days)
	assert.Equal(t, model.Minute(8*60+30), config.Grid.DayStart)
	assert.Equal(t, 4, config.Grid.PeriodsPerDay)
	assert.Equal(t, 55, config.Grid.PeriodMinutes)
	assert.Equal(t, 3.0, config.Weights.BackToBack)
	assert.Equal(t, 5.0, config.Weights.MaxDaily)
	assert.Equal(t, 2*time.Second, config.Engine.TimeBudget)
	assert.Equal(t, 1, config.Engine.Chains)
	assert.True(t, config.Repair.Escalate)
	assert.True(t, config.Store.Enabled())
	assert.Equal(t, "timetabler/notices", config.MQTT.Prefix)
	assert.NotEmpty(t, config.MQTT.ClientID)
}

func TestLoadJsonWithEnvironment(t *testing.T) {
	//** Arrange
	path := writeFile(t, "config.json", `{"engine": {"seed": 3, "workers": 2}}`)
	t.Setenv("SCHED_ENGINE__SEED", "7")
	t.Setenv("SCHED_LOGGING__LEVEL", "debug")
	t.Setenv("SCHED_REPAIR__TIME_BUDGET", "750ms")

	//** Act
	config, err := Load(path)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), config.Engine.Seed)
	assert.Equal(t, 2, config.Engine.Workers)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 750*time.Millisecond, config.Repair.TimeBudget)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := map[string]string{
		"grid":    "grid:\n  periods_per_day: 0\n",
		"weights": "weights:\n  max_daily: -1\n",
		"engine":  "engine:\n  chains: -2\n",
		"logging": "logging:\n  level: loud\n",
		"mqtt":    "mqtt:\n  broker: tcp://localhost:1883\n  qos: 3\n",
	}

	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			path := writeFile(t, "config.yaml", content)

			//** Act
			_, err := Load(path)

			//** Assert
			assert.ErrorIs(t, err, appErrors.ErrValidation)
		})
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	//** Act
	_, err := Load(writeFile(t, "config.toml", "seed = 1"))

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
