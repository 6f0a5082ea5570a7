package model

import (
	"fmt"
	"slices"
)

// TimeSlot is one period of the discretized weekly grid.
type TimeSlot struct {
	Index  int    `json:"index"`
	Day    Day    `json:"day"`
	Period int    `json:"period"`
	Start  Minute `json:"start"`
	End    Minute `json:"end"`
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%v %v-%v", s.Day, s.Start, s.End)
}

func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Day == other.Day && s.Start < other.End && other.Start < s.End
}

func (s TimeSlot) Interval() Interval {
	return Interval{Day: s.Day, Start: s.Start, End: s.End}
}

// GridConfig describes the weekly grid shared by every entity of a planning run.
type GridConfig struct {
	Days          []Day  `json:"days" yaml:"days" koanf:"days"`
	DayStart      Minute `json:"day_start" yaml:"day_start" koanf:"day_start"`
	PeriodMinutes int    `json:"period_minutes" yaml:"period_minutes" koanf:"period_minutes"`
	BreakMinutes  int    `json:"break_minutes" yaml:"break_minutes" koanf:"break_minutes"`
	PeriodsPerDay int    `json:"periods_per_day" yaml:"periods_per_day" koanf:"periods_per_day"`
}

// DefaultGridConfig is Monday to Friday, eight 55-minute periods from 09:00 with 5-minute breaks.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Days:          []Day{Monday, Tuesday, Wednesday, Thursday, Friday},
		DayStart:      9 * 60,
		PeriodMinutes: 55,
		BreakMinutes:  5,
		PeriodsPerDay: 8,
	}
}

type Grid struct {
	config GridConfig
	slots  []TimeSlot
	// Position of each day inside config.Days
	positions map[Day]int
}

func NewGrid(config GridConfig) (*Grid, error) {
	if len(config.Days) == 0 {
		return nil, fmt.Errorf("grid must contain at least one day")
	} else if config.PeriodMinutes <= 0 {
		return nil, fmt.Errorf("period length must be positive: %d", config.PeriodMinutes)
	} else if config.PeriodsPerDay <= 0 {
		return nil, fmt.Errorf("periods per day must be positive: %d", config.PeriodsPerDay)
	} else if config.BreakMinutes < 0 {
		return nil, fmt.Errorf("break length must not be negative: %d", config.BreakMinutes)
	}

	dayEnd := int(config.DayStart) + config.PeriodsPerDay*config.PeriodMinutes + (config.PeriodsPerDay-1)*config.BreakMinutes
	if config.DayStart < 0 || dayEnd > 24*60 {
		return nil, fmt.Errorf("grid does not fit in a day: %v + %d periods", config.DayStart, config.PeriodsPerDay)
	}

	grid := &Grid{
		config:    config,
		slots:     make([]TimeSlot, 0, len(config.Days)*config.PeriodsPerDay),
		positions: make(map[Day]int, len(config.Days)),
	}
	grid.config.Days = slices.Clone(config.Days)

	for position, day := range config.Days {
		if !day.Valid() {
			return nil, fmt.Errorf("invalid day in grid: %v", day)
		} else if _, ok := grid.positions[day]; ok {
			return nil, fmt.Errorf("day %v appears twice in grid", day)
		}
		grid.positions[day] = position
	}

	for position, day := range config.Days {
		for period := range config.PeriodsPerDay {
			start := config.DayStart + Minute(period*(config.PeriodMinutes+config.BreakMinutes))
			grid.slots = append(grid.slots, TimeSlot{
				Index:  grid.Index(position, period),
				Day:    day,
				Period: period,
				Start:  start,
				End:    start + Minute(config.PeriodMinutes),
			})
		}
	}

	return grid, nil
}

func (grid *Grid) Config() GridConfig {
	config := grid.config
	config.Days = slices.Clone(grid.config.Days)
	return config
}

func (grid *Grid) Len() int { return len(grid.slots) }

func (grid *Grid) Days() []Day { return slices.Clone(grid.config.Days) }

func (grid *Grid) PeriodsPerDay() int { return grid.config.PeriodsPerDay }

func (grid *Grid) Slot(index int) TimeSlot { return grid.slots[index] }

func (grid *Grid) Slots() []TimeSlot { return slices.Clone(grid.slots) }

// Index returns the slot index of the given day position and period
func (grid *Grid) Index(dayPosition, period int) int {
	return period + grid.config.PeriodsPerDay*dayPosition
}

// Attributes is the inverse of Index
func (grid *Grid) Attributes(index int) (dayPosition, period int) {
	return index / grid.config.PeriodsPerDay, index % grid.config.PeriodsPerDay
}

func (grid *Grid) DayPosition(day Day) (int, bool) {
	position, ok := grid.positions[day]
	return position, ok
}

// SlotsOn returns the slots of the given day in period order.
func (grid *Grid) SlotsOn(day Day) []TimeSlot {
	position, ok := grid.positions[day]
	if !ok {
		return nil
	}
	first := grid.Index(position, 0)
	return slices.Clone(grid.slots[first : first+grid.config.PeriodsPerDay])
}

// Adjacent reports whether two slots are consecutive periods of the same day.
func (grid *Grid) Adjacent(slot1, slot2 int) bool {
	day1, period1 := grid.Attributes(slot1)
	day2, period2 := grid.Attributes(slot2)
	return day1 == day2 && (period1-period2 == 1 || period2-period1 == 1)
}
