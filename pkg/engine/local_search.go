package engine

import (
	"context"
	"math/rand"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
)

type chainResult struct {
	timetable *model.Timetable
	score     float64
	moves     int
	improved  int
}

// improve runs independent hill-climbing chains on copies of a complete timetable and keeps
// the best-scoring one; ties go to the lowest chain.
func (engine *engine) improve(ctx context.Context, timetable *model.Timetable, domains Domains, budget *budget) (chainResult, error) {
	initial := chainResult{timetable: timetable, score: engine.catalog.Score(timetable)}
	if engine.options.LocalSearchIterations == 0 || initial.score == 0 || len(domains.Sessions) == 0 {
		return initial, nil
	}

	results := make([]chainResult, engine.options.Chains)
	group, groupCtx := errgroup.WithContext(ctx)
	for chain := range engine.options.Chains {
		group.Go(func() error {
			local := &chainSearch{
				engine:  engine,
				domains: domains,
				budget:  budget,
				random:  rand.New(rand.NewSource(engine.options.Seed + int64(chain+1)*7919)),
			}
			result, err := local.run(groupCtx, timetable.Clone(), initial.score)
			results[chain] = result
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return chainResult{}, err
	}

	best := initial
	for _, result := range results {
		best.moves += result.moves
		best.improved += result.improved
		if result.score < best.score {
			best.timetable, best.score = result.timetable, result.score
		}
	}
	return best, nil
}

type chainSearch struct {
	engine  *engine
	domains Domains
	budget  *budget
	random  *rand.Rand
}

// run accepts relocate and swap moves that keep the timetable hard-clean and do not increase
// the score. Once a streak of non-improving moves reaches the plateau limit only strict
// improvements are accepted.
func (chain *chainSearch) run(ctx context.Context, timetable *model.Timetable, score float64) (chainResult, error) {
	result := chainResult{timetable: timetable, score: score}
	movable := lo.Filter(chain.domains.Sessions, func(session model.SessionID, _ int) bool {
		return len(chain.domains.Candidates[session]) > 1
	})
	if len(movable) == 0 {
		return result, nil
	}

	streak := 0
	for range chain.engine.options.LocalSearchIterations {
		if err := ctx.Err(); err != nil {
			return result, err
		} else if result.score == 0 || chain.budget.spent() {
			break
		}
		result.moves++

		var previous []model.Assignment
		if len(movable) > 1 && chain.random.Intn(2) == 0 {
			previous = chain.swap(timetable, movable)
		} else {
			previous = chain.relocate(timetable, movable)
		}
		if previous == nil {
			streak++
			continue
		}

		candidate := chain.engine.catalog.Score(timetable)
		switch {
		case candidate < result.score:
			result.score = candidate
			result.improved++
			streak = 0
		case candidate == result.score && streak < chain.engine.options.PlateauLimit:
			streak++
		default:
			for _, assignment := range previous {
				timetable.Assign(assignment)
			}
			streak++
		}
	}
	return result, nil
}

// relocate moves a random session to another admissible candidate. It returns the replaced
// assignments, or nil when the move was not applied.
func (chain *chainSearch) relocate(timetable *model.Timetable, movable []model.SessionID) []model.Assignment {
	session := movable[chain.random.Intn(len(movable))]
	candidates := chain.domains.Candidates[session]
	current, _ := timetable.Assignment(session)
	next := candidates[chain.random.Intn(len(candidates))]
	if next == current {
		return nil
	}

	timetable.Unassign(session)
	if !chain.fits(timetable, next) {
		timetable.Assign(current)
		return nil
	}
	timetable.Assign(next)
	if !chain.globalsHold(timetable) {
		timetable.Assign(current)
		return nil
	}
	return []model.Assignment{current}
}

// swap exchanges the slot and room of two sessions when both land on admissible candidates.
func (chain *chainSearch) swap(timetable *model.Timetable, movable []model.SessionID) []model.Assignment {
	i, j := chain.random.Intn(len(movable)), chain.random.Intn(len(movable)-1)
	if j >= i {
		j++
	}
	a, _ := timetable.Assignment(movable[i])
	b, _ := timetable.Assignment(movable[j])
	if a.Slot == b.Slot && a.Room == b.Room {
		return nil
	}

	nextA, okA := lo.Find(chain.domains.Candidates[a.Session], func(candidate model.Assignment) bool {
		return candidate.Slot == b.Slot && candidate.Room == b.Room && candidate.Teacher == a.Teacher
	})
	nextB, okB := lo.Find(chain.domains.Candidates[b.Session], func(candidate model.Assignment) bool {
		return candidate.Slot == a.Slot && candidate.Room == a.Room && candidate.Teacher == b.Teacher
	})
	if !okA || !okB {
		return nil
	}

	timetable.Unassign(a.Session)
	timetable.Unassign(b.Session)
	_, clash := chain.engine.catalog.Clash(timetable.Data(), nextA, nextB)
	if clash || !chain.fits(timetable, nextA) || !chain.fits(timetable, nextB) {
		timetable.Assign(a)
		timetable.Assign(b)
		return nil
	}
	timetable.Assign(nextA)
	timetable.Assign(nextB)
	if !chain.globalsHold(timetable) {
		timetable.Assign(a)
		timetable.Assign(b)
		return nil
	}
	return []model.Assignment{a, b}
}

// fits reports whether the candidate clashes with no assignment of the timetable.
func (chain *chainSearch) fits(timetable *model.Timetable, candidate model.Assignment) bool {
	data := timetable.Data()
	for _, other := range timetable.Assignments() {
		if _, clash := chain.engine.catalog.Clash(data, candidate, other); clash {
			return false
		}
	}
	return true
}

func (chain *chainSearch) globalsHold(timetable *model.Timetable) bool {
	for _, hard := range chain.engine.catalog.Hard() {
		_, unary := hard.(constraint.Filter)
		_, pairwise := hard.(constraint.Pairwise)
		if !unary && !pairwise && len(hard.Evaluate(timetable)) > 0 {
			return false
		}
	}
	return true
}
