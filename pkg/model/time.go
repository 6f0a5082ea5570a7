package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = map[Day]string{
	Monday:    "Monday",
	Tuesday:   "Tuesday",
	Wednesday: "Wednesday",
	Thursday:  "Thursday",
	Friday:    "Friday",
	Saturday:  "Saturday",
	Sunday:    "Sunday",
}

func (d Day) String() string {
	if name, ok := dayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Day(%d)", int(d))
}

func (d Day) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Day) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid day %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(text []byte) error {
	day, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// ParseDay accepts full or three-letter English weekday names, case-insensitive.
func ParseDay(s string) (Day, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for day, name := range dayNames {
		lower := strings.ToLower(name)
		if s == lower || (len(s) == 3 && strings.HasPrefix(lower, s)) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// Minute is a time of day expressed in minutes since midnight.
type Minute int

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m Minute) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Minute) UnmarshalText(text []byte) error {
	minute, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*m = minute
	return nil
}

// ParseClock accepts "9", "09", "9:30" and "09:30".
func ParseClock(s string) (Minute, error) {
	s = strings.TrimSpace(s)
	hours, minutes, hasMinutes := strings.Cut(s, ":")
	h, err := strconv.Atoi(hours)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m := 0
	if hasMinutes {
		if m, err = strconv.Atoi(minutes); err != nil {
			return 0, fmt.Errorf("invalid clock %q: %w", s, err)
		}
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock out of range %q", s)
	}
	return Minute(h*60 + m), nil
}

// Interval is a half-open [Start, End) window on a single day.
type Interval struct {
	Day   Day    `json:"day" yaml:"day"`
	Start Minute `json:"start" yaml:"start"`
	End   Minute `json:"end" yaml:"end"`
}

func (iv Interval) String() string {
	return fmt.Sprintf("%v %v-%v", iv.Day, iv.Start, iv.End)
}

func (iv Interval) Valid() bool {
	return iv.Day.Valid() && iv.Start >= 0 && iv.Start < iv.End && iv.End <= 24*60
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Day == other.Day && iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether the slot lies entirely within the interval.
func (iv Interval) Contains(slot TimeSlot) bool {
	return iv.Day == slot.Day && iv.Start <= slot.Start && slot.End <= iv.End
}

// ParseIntervals parses the compact availability syntax "Monday:9-12,Tuesday:09:30-12".
func ParseIntervals(s string) ([]Interval, error) {
	intervals := make([]Interval, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dayStr, rangeStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid interval %q: expected Day:start-end", part)
		}
		day, err := ParseDay(dayStr)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", part, err)
		}
		startStr, endStr, ok := strings.Cut(rangeStr, "-")
		if !ok {
			return nil, fmt.Errorf("invalid interval %q: expected start-end", part)
		}
		start, err := ParseClock(startStr)
		if err != nil {
			return nil, err
		}
		end, err := ParseClock(endStr)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, Interval{Day: day, Start: start, End: end})
	}
	return intervals, nil
}

func sortIntervals(intervals []Interval) {
	slices.SortFunc(intervals, func(a, b Interval) int {
		if a.Day != b.Day {
			return int(a.Day) - int(b.Day)
		}
		return int(a.Start) - int(b.Start)
	})
}

// firstOverlap returns the first pair of overlapping intervals, if any.
func firstOverlap(intervals []Interval) (Interval, Interval, bool) {
	sorted := slices.Clone(intervals)
	sortIntervals(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Overlaps(sorted[i]) {
			return sorted[i-1], sorted[i], true
		}
	}
	return Interval{}, Interval{}, false
}
