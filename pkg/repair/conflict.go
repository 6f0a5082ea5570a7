package repair

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/sat"
)

// MinimalConflict returns a minimal set of sessions that cannot all be scheduled together
// under the unary and pairwise hard constraints, or nil when every session can be placed.
// Removing any one session from the set makes the rest schedulable.
func MinimalConflict(ctx context.Context, catalog constraint.Catalog, problem engine.Problem, solver sat.SATSolver) ([]model.SessionID, error) {
	domains, err := engine.BuildDomains(catalog, problem, 1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid problem")
	}
	if empty := domains.Empty(); len(empty) > 0 {
		return empty[:1], nil
	}

	instance, selectors := encode(catalog, problem.Data, domains)
	core, err := solver.Core(ctx, instance, selectors)
	if err != nil {
		return nil, appErrors.FromError(err)
	} else if core == nil {
		return nil, nil
	}

	// Selectors follow the session order, and so does the core
	sessions := make(map[int64]model.SessionID, len(selectors))
	for i, selector := range selectors {
		sessions[selector] = domains.Sessions[i]
	}
	return lo.Map(core, func(selector int64, _ int) model.SessionID { return sessions[selector] }), nil
}

// encode builds one selector per session, requiring some candidate of the session when it
// holds, plus one binary clause per pair of clashing candidates. Grid slots never overlap each
// other, so clashes are only looked for within a slot.
func encode(catalog constraint.Catalog, data *model.Dataset, domains engine.Domains) (sat.SAT, []int64) {
	var instance sat.SAT
	selectors := make([]int64, 0, len(domains.Sessions))

	type literal struct {
		variable  int64
		candidate model.Assignment
	}
	bySlot := make(map[int][]literal)
	for _, session := range domains.Sessions {
		selector := instance.NewVariable()
		selectors = append(selectors, selector)

		clause := []int64{-selector}
		for _, candidate := range domains.Candidates[session] {
			variable := instance.NewVariable()
			clause = append(clause, variable)
			bySlot[candidate.Slot] = append(bySlot[candidate.Slot], literal{variable: variable, candidate: candidate})
		}
		instance.AddClause(clause...)
	}

	pairwise := lo.FilterMap(catalog.Hard(), func(hard constraint.Constraint, _ int) (constraint.Pairwise, bool) {
		clash, ok := hard.(constraint.Pairwise)
		return clash, ok
	})

	// Every pairwise constraint emits its clauses concurrently
	clauseChan := make(chan []int64, 1024)
	var waitGroup sync.WaitGroup
	for _, clash := range pairwise {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for _, literals := range bySlot {
				for i := 0; i < len(literals)-1; i++ {
					for j := i + 1; j < len(literals); j++ {
						if clash.Clash(data, literals[i].candidate, literals[j].candidate) {
							clauseChan <- []int64{-literals[i].variable, -literals[j].variable}
						}
					}
				}
			}
		}()
	}
	go func() {
		waitGroup.Wait()
		close(clauseChan)
	}()

	for clause := range clauseChan {
		instance.AddClause(clause...)
	}
	return instance, selectors
}
