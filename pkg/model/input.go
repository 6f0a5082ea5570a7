package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	appErrors "github.com/limaJavier/timetabler/pkg/errors"
)

// Input is the raw planning document before validation.
type Input struct {
	Grid     *GridConfig `json:"grid"`
	Teachers []Teacher   `json:"teachers"`
	Rooms    []Room      `json:"rooms"`
	Courses  []Course    `json:"courses"`
}

// Dataset validates the input against its own grid, or the fallback grid when the document
// does not declare one.
func (input Input) Dataset(ctx context.Context, fallback GridConfig) (*Dataset, error) {
	config := fallback
	if input.Grid != nil {
		config = *input.Grid
	}
	grid, err := NewGrid(config)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid grid")
	}
	return NewDataset(ctx, grid, input.Teachers, input.Rooms, input.Courses)
}

func InputFromJson(file string) (Input, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return Input{}, fmt.Errorf("cannot read input file: %w", err)
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return Input{}, appErrors.Wrap(err, appErrors.CodeValidation, "malformed JSON input")
	}
	return DecodeInput(inputJson)
}

func InputFromYaml(file string) (Input, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return Input{}, fmt.Errorf("cannot read input file: %w", err)
	}
	var inputYaml map[string]any
	if err := yaml.Unmarshal(bytes, &inputYaml); err != nil {
		return Input{}, appErrors.Wrap(err, appErrors.CodeValidation, "malformed YAML input")
	}
	return DecodeInput(inputYaml)
}

// InputFromFile picks the decoder from the file extension.
func InputFromFile(file string) (Input, error) {
	lower := strings.ToLower(file)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return InputFromYaml(file)
	}
	return InputFromJson(file)
}

// DecodeInput decodes a generic document. Besides the structured forms it accepts:
//   - availability as "Monday:9-12,Tuesday:09:30-12"
//   - subjects as "Calculus|Linear Algebra"
//   - preferences as a JSON string, with max_lectures as an alias of max_sessions_per_day
//   - days and clocks as strings ("Mon", "9:30")
func DecodeInput(raw map[string]any) (Input, error) {
	var input Input
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      &input,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			intervalsHook,
			preferencesHook,
			roomTypeHook,
			mapstructure.StringToSliceHookFunc("|"),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return Input{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Input{}, appErrors.Wrap(err, appErrors.CodeValidation, "cannot decode input")
	}
	return input, nil
}

var (
	intervalsType   = reflect.TypeOf([]Interval{})
	preferencesType = reflect.TypeOf(Preferences{})
	roomTypeType    = reflect.TypeOf(RoomType(""))
)

func intervalsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != intervalsType || from.Kind() != reflect.String {
		return data, nil
	}
	return ParseIntervals(data.(string))
}

func preferencesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != preferencesType {
		return data, nil
	}

	var preferences map[string]any
	switch value := data.(type) {
	case string:
		if strings.TrimSpace(value) == "" {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal([]byte(value), &preferences); err != nil {
			return nil, fmt.Errorf("invalid preferences %q: %w", value, err)
		}
	case map[string]any:
		preferences = make(map[string]any, len(value))
		for key, v := range value {
			preferences[key] = v
		}
	default:
		return data, nil
	}

	if maxLectures, ok := preferences["max_lectures"]; ok {
		delete(preferences, "max_lectures")
		if _, ok := preferences["max_sessions_per_day"]; !ok {
			preferences["max_sessions_per_day"] = maxLectures
		}
	}
	return preferences, nil
}

func roomTypeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != roomTypeType || from.Kind() != reflect.String {
		return data, nil
	}
	return RoomType(strings.ToLower(strings.TrimSpace(data.(string)))), nil
}
