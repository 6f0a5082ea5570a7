package sat

import (
	"context"
	"slices"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/samber/lo"
)

type SATSolver interface {
	// Solve returns a model of the instance, or nil when it is unsatisfiable (a valid output
	// where error shall be nil)
	Solve(ctx context.Context, sat SAT) (SATSolution, error)
	// Core returns a minimal subset of the assumptions that is unsatisfiable together with the
	// clauses, or nil when the instance is satisfiable under all of them
	Core(ctx context.Context, sat SAT, assumptions []int64) ([]int64, error)
}

// pollInterval bounds how long a cancelled context may wait for the solver to notice.
const pollInterval = 5 * time.Millisecond

type giniSolver struct{}

// NewGiniSolver returns an in-process CDCL solver.
func NewGiniSolver() SATSolver {
	return &giniSolver{}
}

func (solver *giniSolver) Solve(ctx context.Context, sat SAT) (SATSolution, error) {
	g := load(sat)
	result, err := solve(ctx, g)
	if err != nil || result != 1 {
		return nil, err
	}

	maxVar := g.MaxVar()
	solution := make(SATSolution, 0, sat.Variables)
	for variable := int64(1); variable <= int64(sat.Variables); variable++ {
		// Variables absent from every clause are free; pick false
		if z.Var(variable) > maxVar || !g.Value(z.Var(variable).Pos()) {
			solution = append(solution, -variable)
		} else {
			solution = append(solution, variable)
		}
	}
	return solution, nil
}

func (solver *giniSolver) Core(ctx context.Context, sat SAT, assumptions []int64) ([]int64, error) {
	g := load(sat)
	g.Assume(literals(assumptions)...)
	result, err := solve(ctx, g)
	if err != nil || result == 1 {
		return nil, err
	}
	core := restrict(assumptions, g.Why(nil))

	// Deletion-based shrinking: an assumption stays only if dropping it makes the rest satisfiable
	for i := 0; i < len(core); {
		candidate := slices.Delete(slices.Clone(core), i, i+1)
		g.Assume(literals(candidate)...)
		result, err := solve(ctx, g)
		if err != nil {
			return nil, err
		}
		if result == -1 {
			core = restrict(candidate, g.Why(nil))
		} else {
			i++
		}
	}
	return core, nil
}

func load(sat SAT) *gini.Gini {
	g := gini.New()
	for _, clause := range sat.Clauses {
		for _, literal := range clause {
			g.Add(z.Dimacs2Lit(int(literal)))
		}
		g.Add(z.LitNull)
	}
	return g
}

// solve runs the solver in the background and stops it when ctx is done. It returns 1 for
// satisfiable and -1 for unsatisfiable.
func solve(ctx context.Context, g *gini.Gini) (int, error) {
	running := g.GoSolve()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if result, done := running.Test(); done {
			return result, nil
		}
		select {
		case <-ctx.Done():
			running.Stop()
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func literals(dimacs []int64) []z.Lit {
	return lo.Map(dimacs, func(literal int64, _ int) z.Lit { return z.Dimacs2Lit(int(literal)) })
}

// restrict keeps the assumptions (in their order) that appear among the failed literals.
func restrict(assumptions []int64, failed []z.Lit) []int64 {
	set := lo.SliceToMap(failed, func(literal z.Lit) (int64, bool) { return int64(literal.Dimacs()), true })
	return lo.Filter(assumptions, func(literal int64, _ int) bool { return set[literal] })
}
