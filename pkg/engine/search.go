package engine

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
)

// budget is shared by every component and chain of a run.
type budget struct {
	deadline time.Time
	maxNodes int64
	nodes    atomic.Int64
	// Set once a component is proven infeasible; the other components stop early
	halted atomic.Bool
}

func newBudget(start time.Time, options Options) *budget {
	b := &budget{maxNodes: options.MaxNodes}
	if options.TimeBudget > 0 {
		b.deadline = start.Add(options.TimeBudget)
	}
	return b
}

func (b *budget) spent() bool {
	if b.halted.Load() {
		return true
	} else if b.maxNodes > 0 && b.nodes.Load() >= b.maxNodes {
		return true
	}
	return !b.deadline.IsZero() && !time.Now().Before(b.deadline)
}

type outcome int

const (
	found outcome = iota
	exhausted
	stopped
)

type variable struct {
	session    model.SessionID
	enrollment int
	candidates []model.Assignment
	// Variables sharing a teacher, room or class with this one
	neighbors []int
}

type pruning struct {
	variable, candidate int
}

// search is a backtracking search with forward checking over one component. It is strictly
// sequential and owns all of its state.
type search struct {
	catalog constraint.Catalog
	data    *model.Dataset
	// Hard constraints that are neither unary nor pairwise, checked on complete assignments
	globals []constraint.Constraint
	pinned  []model.Assignment
	budget  *budget

	variables []variable
	value     []int
	pruned    [][]bool
	alive     []int
	trail     []pruning

	best      []int
	bestCount int
	blocking  map[string]int

	nodes      int64
	backtracks int64
}

func newSearch(catalog constraint.Catalog, data *model.Dataset, pinned []model.Assignment, budget *budget, domains Domains, sessions []model.SessionID) *search {
	globals := lo.Filter(catalog.Hard(), func(hard constraint.Constraint, _ int) bool {
		_, unary := hard.(constraint.Filter)
		_, pairwise := hard.(constraint.Pairwise)
		return !unary && !pairwise
	})

	s := &search{
		catalog:   catalog,
		data:      data,
		globals:   globals,
		pinned:    pinned,
		budget:    budget,
		variables: make([]variable, len(sessions)),
		value:     make([]int, len(sessions)),
		pruned:    make([][]bool, len(sessions)),
		alive:     make([]int, len(sessions)),
		best:      make([]int, len(sessions)),
		blocking:  make(map[string]int),
	}

	resources := make(map[string][]int)
	for i, session := range sessions {
		course := data.CourseOf(session)
		candidates := domains.Candidates[session]
		s.variables[i] = variable{session: session, enrollment: course.Enrollment, candidates: candidates}
		s.value[i], s.best[i] = -1, -1
		s.pruned[i] = make([]bool, len(candidates))
		s.alive[i] = len(candidates)

		keys := []string{"class:" + course.Class}
		for _, candidate := range candidates {
			keys = append(keys, "teacher:"+candidate.Teacher, "room:"+candidate.Room)
		}
		for _, key := range lo.Uniq(keys) {
			resources[key] = append(resources[key], i)
		}
	}
	neighbors := make([]map[int]bool, len(sessions))
	for i := range neighbors {
		neighbors[i] = make(map[int]bool)
	}
	for _, members := range resources {
		for _, a := range members {
			for _, b := range members {
				if a != b {
					neighbors[a][b] = true
				}
			}
		}
	}
	for i := range s.variables {
		s.variables[i].neighbors = lo.Keys(neighbors[i])
		slices.Sort(s.variables[i].neighbors)
	}
	return s
}

func (s *search) run(ctx context.Context) (outcome, error) {
	return s.backtrack(ctx, 0)
}

func (s *search) backtrack(ctx context.Context, assigned int) (outcome, error) {
	if assigned == len(s.variables) {
		if s.globalsHold() {
			return found, nil
		}
		return exhausted, nil
	}
	if err := ctx.Err(); err != nil {
		return stopped, err
	} else if s.budget.spent() {
		return stopped, nil
	}
	s.nodes++
	s.budget.nodes.Add(1)

	x := s.selectVariable()
	for i := range s.variables[x].candidates {
		if s.pruned[x][i] {
			continue
		}
		s.value[x] = i
		// The assignment is consistent even when it wipes out a neighbor
		s.recordBest(assigned + 1)
		mark := len(s.trail)
		if s.propagate(x, i) {
			result, err := s.backtrack(ctx, assigned+1)
			if err != nil || result != exhausted {
				return result, err
			}
		}
		s.restore(mark)
		s.value[x] = -1
		s.backtracks++
	}
	return exhausted, nil
}

// selectVariable applies the minimum-remaining-values heuristic; ties go to the larger
// enrollment, then to the smaller session id.
func (s *search) selectVariable() int {
	selected := -1
	for i, v := range s.variables {
		if s.value[i] >= 0 {
			continue
		}
		if selected < 0 {
			selected = i
			continue
		}
		current := s.variables[selected]
		if s.alive[i] != s.alive[selected] {
			if s.alive[i] < s.alive[selected] {
				selected = i
			}
		} else if v.enrollment != current.enrollment {
			if v.enrollment > current.enrollment {
				selected = i
			}
		} else if strings.Compare(string(v.session), string(current.session)) < 0 {
			selected = i
		}
	}
	return selected
}

// propagate prunes the candidates of unassigned neighbors clashing with the new assignment.
// It returns false on a domain wipe-out.
func (s *search) propagate(x, i int) bool {
	chosen := s.variables[x].candidates[i]
	for _, y := range s.variables[x].neighbors {
		if s.value[y] >= 0 {
			continue
		}
		var last constraint.Constraint
		for j, candidate := range s.variables[y].candidates {
			if s.pruned[y][j] {
				continue
			}
			if clashing, ok := s.catalog.Clash(s.data, chosen, candidate); ok {
				s.pruned[y][j] = true
				s.alive[y]--
				s.trail = append(s.trail, pruning{variable: y, candidate: j})
				last = clashing
			}
		}
		if s.alive[y] == 0 {
			if last != nil {
				s.blocking[last.Name()]++
			}
			return false
		}
	}
	return true
}

func (s *search) restore(mark int) {
	for _, p := range s.trail[mark:] {
		s.pruned[p.variable][p.candidate] = false
		s.alive[p.variable]++
	}
	s.trail = s.trail[:mark]
}

func (s *search) recordBest(count int) {
	if count > s.bestCount {
		s.bestCount = count
		copy(s.best, s.value)
	}
}

func (s *search) globalsHold() bool {
	if len(s.globals) == 0 {
		return true
	}
	timetable := model.NewTimetable("", s.data)
	for _, pinned := range s.pinned {
		timetable.Assign(pinned)
	}
	for _, assignment := range s.assignment(s.value) {
		timetable.Assign(assignment)
	}
	for _, global := range s.globals {
		if violations := global.Evaluate(timetable); len(violations) > 0 {
			s.blocking[global.Name()]++
			return false
		}
	}
	return true
}

func (s *search) assignment(values []int) []model.Assignment {
	assignments := make([]model.Assignment, 0, len(values))
	for x, i := range values {
		if i >= 0 {
			assignments = append(assignments, s.variables[x].candidates[i])
		}
	}
	return assignments
}
