package constraint

import (
	"fmt"

	"github.com/limaJavier/timetabler/pkg/model"
)

type Kind int

const (
	Hard Kind = iota
	Soft
)

func (kind Kind) String() string {
	if kind == Hard {
		return "hard"
	}
	return "soft"
}

// Code tags every constraint variant so that callers can switch over them exhaustively.
type Code int

const (
	TeacherOverlap Code = iota
	RoomOverlap
	ClassOverlap
	Availability
	Capacity
	RoomType
	Qualification
	BackToBack
	MaxDaily
	ClassLoad
	TeacherLoad
	// Facts changed after scheduling, e.g. a teacher absence handled by repair
	Disruption
)

var codeNames = map[Code]string{
	TeacherOverlap: "teacher-overlap",
	RoomOverlap:    "room-overlap",
	ClassOverlap:   "class-overlap",
	Availability:   "availability",
	Capacity:       "capacity",
	RoomType:       "room-type",
	Qualification:  "qualification",
	BackToBack:     "back-to-back",
	MaxDaily:       "max-daily",
	ClassLoad:      "class-load",
	TeacherLoad:    "teacher-load",
	Disruption:     "disruption",
}

func (code Code) String() string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(code))
}

func (code Code) MarshalText() ([]byte, error) { return []byte(code.String()), nil }

func ParseCode(s string) (Code, error) {
	for code, name := range codeNames {
		if name == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown constraint %q", s)
}

// Violation is one breach of a constraint by a (partial or complete) timetable.
type Violation struct {
	Code       Code              `json:"code"`
	Constraint string            `json:"constraint"`
	Kind       Kind              `json:"-"`
	Sessions   []model.SessionID `json:"sessions"`
	// Teacher, room or class the violation is about, if any
	Resource string `json:"resource,omitempty"`
	Slots    []int  `json:"slots,omitempty"`
	// Violation count or magnitude before weighting
	Amount float64 `json:"amount"`
	// Amount multiplied by the constraint weight; zero for hard constraints
	Penalty float64 `json:"penalty"`
	Message string  `json:"message"`
}

type Constraint interface {
	Code() Code
	Name() string
	Kind() Kind
	// Weight is the penalty per unit of violation; hard constraints return zero
	Weight() float64
	Evaluate(timetable *model.Timetable) []Violation
}

// Filter is implemented by hard constraints decidable on a single assignment. The engine uses
// it to build each session's candidate domain.
type Filter interface {
	Admits(data *model.Dataset, candidate model.Assignment) bool
}

// Pairwise is implemented by hard constraints that forbid two assignments from coexisting.
// The engine uses it for forward checking.
type Pairwise interface {
	Clash(data *model.Dataset, a, b model.Assignment) bool
}
