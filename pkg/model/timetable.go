package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type State int

const (
	StateEmpty State = iota
	// Search in progress or interrupted
	StatePartial
	// Every session assigned and every hard constraint satisfied
	StateComplete
	// Proven that no complete assignment exists
	StateInfeasible
)

var stateNames = map[State]string{
	StateEmpty:      "empty",
	StatePartial:    "partial",
	StateComplete:   "complete",
	StateInfeasible: "infeasible",
}

func (state State) String() string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(state))
}

func ParseState(s string) (State, error) {
	for state, name := range stateNames {
		if strings.EqualFold(name, s) {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown timetable state %q", s)
}

// Assignment binds a session to a slot, a room and the teacher who actually teaches it.
type Assignment struct {
	Id         string    `json:"id,omitempty"`
	Session    SessionID `json:"session"`
	Slot       int       `json:"slot"`
	Room       string    `json:"room"`
	Teacher    string    `json:"teacher"`
	Substitute bool      `json:"substitute,omitempty"`
}

// Timetable maps sessions to assignments. It is never shared between runs: every change is
// made on a Clone.
type Timetable struct {
	Id      string
	Version int
	State   State
	Score   float64

	data        *Dataset
	assignments map[SessionID]Assignment
}

func NewTimetable(id string, data *Dataset) *Timetable {
	return &Timetable{
		Id:          id,
		State:       StateEmpty,
		data:        data,
		assignments: make(map[SessionID]Assignment),
	}
}

func (timetable *Timetable) Data() *Dataset { return timetable.data }

func (timetable *Timetable) Len() int { return len(timetable.assignments) }

func (timetable *Timetable) Assignment(session SessionID) (Assignment, bool) {
	assignment, ok := timetable.assignments[session]
	return assignment, ok
}

// Assign stores (or replaces) the assignment of its session.
func (timetable *Timetable) Assign(assignment Assignment) {
	if _, ok := timetable.data.Session(assignment.Session); !ok {
		panic(fmt.Sprintf("session %q does not belong to the dataset", assignment.Session))
	}
	timetable.assignments[assignment.Session] = assignment
	if timetable.State == StateEmpty {
		timetable.State = StatePartial
	}
}

func (timetable *Timetable) Unassign(session SessionID) {
	delete(timetable.assignments, session)
}

// Assignments returns every assignment ordered by slot, room and session.
func (timetable *Timetable) Assignments() []Assignment {
	assignments := slices.Collect(maps.Values(timetable.assignments))
	slices.SortFunc(assignments, compareAssignments)
	return assignments
}

func compareAssignments(a, b Assignment) int {
	if a.Slot != b.Slot {
		return a.Slot - b.Slot
	}
	if c := strings.Compare(a.Room, b.Room); c != 0 {
		return c
	}
	return strings.Compare(string(a.Session), string(b.Session))
}

// Unassigned returns the sessions of the dataset without an assignment, in dataset order.
func (timetable *Timetable) Unassigned() []SessionID {
	unassigned := make([]SessionID, 0)
	for _, session := range timetable.data.sessions {
		if _, ok := timetable.assignments[session.Id]; !ok {
			unassigned = append(unassigned, session.Id)
		}
	}
	return unassigned
}

// Covers reports whether every session of the dataset is assigned exactly once.
func (timetable *Timetable) Covers() bool {
	return len(timetable.assignments) == len(timetable.data.sessions) && len(timetable.Unassigned()) == 0
}

func (timetable *Timetable) Clone() *Timetable {
	clone := *timetable
	clone.assignments = maps.Clone(timetable.assignments)
	return &clone
}

// Document is the serializable form of a timetable.
type Document struct {
	Id          string       `json:"id"`
	Version     int          `json:"version"`
	State       string       `json:"state"`
	Score       float64      `json:"score"`
	Assignments []Assignment `json:"assignments"`
}

func (timetable *Timetable) Document() Document {
	return Document{
		Id:          timetable.Id,
		Version:     timetable.Version,
		State:       timetable.State.String(),
		Score:       timetable.Score,
		Assignments: timetable.Assignments(),
	}
}

// FromDocument rebuilds a timetable against the dataset it was produced from.
func FromDocument(document Document, data *Dataset) (*Timetable, error) {
	state, err := ParseState(document.State)
	if err != nil {
		return nil, err
	}
	timetable := NewTimetable(document.Id, data)
	timetable.Version = document.Version
	timetable.Score = document.Score
	for _, assignment := range document.Assignments {
		if _, ok := data.Session(assignment.Session); !ok {
			return nil, fmt.Errorf("assignment %q references unknown session %q", assignment.Id, assignment.Session)
		} else if assignment.Slot < 0 || assignment.Slot >= data.grid.Len() {
			return nil, fmt.Errorf("assignment %q references slot %d outside the grid", assignment.Id, assignment.Slot)
		}
		timetable.assignments[assignment.Session] = assignment
	}
	timetable.State = state
	return timetable, nil
}
