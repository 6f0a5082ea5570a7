package engine

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
)

// Problem is one planning run. The zero value of every optional field schedules the whole
// dataset from scratch.
type Problem struct {
	Data *model.Dataset
	// Sessions to schedule; nil means every session that is not pinned
	Sessions []model.SessionID
	// Fixed assignments that constrain the search and are kept in the result
	Pinned []model.Assignment
	// Candidate overrides for some sessions, e.g. substitute teachers; other sessions get
	// every (slot, room) pair with the course teacher
	Candidates map[model.SessionID][]model.Assignment
	// Cost orders candidates (lower first) before the seeded shuffle breaks ties
	Cost func(candidate model.Assignment) int
	// Id of the produced timetable; generated when empty
	TimetableId string
	Version     int
}

func (problem Problem) sessions() ([]model.SessionID, error) {
	pinned := lo.SliceToMap(problem.Pinned, func(assignment model.Assignment) (model.SessionID, bool) { return assignment.Session, true })
	for session := range pinned {
		if _, ok := problem.Data.Session(session); !ok {
			return nil, fmt.Errorf("pinned session %q does not belong to the dataset", session)
		}
	}
	if problem.Sessions == nil {
		return lo.FilterMap(problem.Data.Sessions(), func(session model.Session, _ int) (model.SessionID, bool) {
			return session.Id, !pinned[session.Id]
		}), nil
	}
	for _, session := range problem.Sessions {
		if _, ok := problem.Data.Session(session); !ok {
			return nil, fmt.Errorf("session %q does not belong to the dataset", session)
		} else if pinned[session] {
			return nil, fmt.Errorf("session %q is both pinned and scheduled", session)
		}
	}
	return lo.Uniq(problem.Sessions), nil
}

// Domains holds the admissible candidates of each session and, for sessions left without
// any, the constraints that removed them.
type Domains struct {
	Sessions   []model.SessionID
	Candidates map[model.SessionID][]model.Assignment
	Rejections map[model.SessionID]map[string]int
}

// Empty returns the sessions without any admissible candidate.
func (domains Domains) Empty() []model.SessionID {
	return lo.Filter(domains.Sessions, func(session model.SessionID, _ int) bool { return len(domains.Candidates[session]) == 0 })
}

// BuildDomains filters every candidate of the problem's sessions through the unary hard
// constraints and against the pinned assignments. Candidates are ordered by cost, ties broken
// by a shuffle derived from seed.
func BuildDomains(catalog constraint.Catalog, problem Problem, seed int64) (Domains, error) {
	sessions, err := problem.sessions()
	if err != nil {
		return Domains{}, err
	}

	data := problem.Data
	grid := data.Grid()
	rooms := data.Rooms()
	random := rand.New(rand.NewSource(seed))

	domains := Domains{
		Sessions:   sessions,
		Candidates: make(map[model.SessionID][]model.Assignment, len(sessions)),
		Rejections: make(map[model.SessionID]map[string]int),
	}
	for _, session := range sessions {
		raw, ok := problem.Candidates[session]
		if !ok {
			teacher := data.CourseOf(session).Teacher
			raw = make([]model.Assignment, 0, grid.Len()*len(rooms))
			for slot := range grid.Len() {
				for _, room := range rooms {
					raw = append(raw, model.Assignment{Session: session, Slot: slot, Room: room.Id, Teacher: teacher})
				}
			}
		}

		rejections := make(map[string]int)
		candidates := make([]model.Assignment, 0, len(raw))
		for _, candidate := range raw {
			candidate.Session = session
			if rejecting, ok := catalog.Admits(data, candidate); !ok {
				rejections[rejecting.Name()]++
				continue
			}
			clash := false
			for _, pinned := range problem.Pinned {
				if rejecting, ok := catalog.Clash(data, candidate, pinned); ok {
					rejections[rejecting.Name()]++
					clash = true
					break
				}
			}
			if !clash {
				candidates = append(candidates, candidate)
			}
		}

		random.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		if problem.Cost != nil {
			slices.SortStableFunc(candidates, func(a, b model.Assignment) int {
				return cmp.Compare(problem.Cost(a), problem.Cost(b))
			})
		}

		domains.Candidates[session] = candidates
		if len(candidates) == 0 {
			domains.Rejections[session] = rejections
		}
	}
	return domains, nil
}

// rankRejections orders constraint names by how often they rejected candidates.
func rankRejections(counts map[string]int) []string {
	names := lo.Keys(counts)
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return names
}
