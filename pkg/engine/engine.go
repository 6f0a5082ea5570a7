package engine

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/pkg/constraint"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

// Engine runs planning runs: Init → Searching → {Complete | Infeasible | TimedOut}.
type Engine interface {
	Solve(ctx context.Context, problem Problem) (*Result, error)
	Catalog() constraint.Catalog
	Options() Options
}

type engine struct {
	catalog constraint.Catalog
	options Options
	log     logger.Logger
}

func NewEngine(catalog constraint.Catalog, options Options, log logger.Logger) (Engine, error) {
	if catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a constraint catalog is required")
	} else if err := options.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid engine options")
	}
	return &engine{
		catalog: catalog,
		options: options.normalized(),
		log:     logger.OrNop(log),
	}, nil
}

func (engine *engine) Catalog() constraint.Catalog { return engine.catalog }

func (engine *engine) Options() Options { return engine.options }

type componentResult struct {
	outcome    outcome
	values     []model.Assignment
	best       []model.Assignment
	blocking   map[string]int
	nodes      int64
	backtracks int64
}

func (engine *engine) Solve(ctx context.Context, problem Problem) (*Result, error) {
	start := time.Now()
	if problem.Data == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a dataset is required")
	}
	result := &Result{RunID: uuid.NewString()}
	budget := newBudget(start, engine.options)

	//** Init
	domains, err := BuildDomains(engine.catalog, problem, engine.options.Seed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid problem")
	}
	engine.log.Debugw("planning run started", map[string]any{
		"run":      result.RunID,
		"sessions": len(domains.Sessions),
		"pinned":   len(problem.Pinned),
		"budget":   engine.options.TimeBudget.String(),
	})

	finish := func(status Status, assignments []model.Assignment, blocking []string, conflict []model.SessionID) (*Result, error) {
		result.Status = status
		result.Blocking = blocking
		result.Conflict = conflict
		engine.assemble(ctx, result, problem, assignments)
		result.Stats.Duration = time.Since(start)
		engine.log.Debugw("planning run finished", map[string]any{
			"run":        result.RunID,
			"status":     result.Status.String(),
			"score":      result.Score,
			"unassigned": len(result.Unassigned),
			"nodes":      result.Stats.Nodes,
			"duration":   result.Stats.Duration.String(),
		})
		return result, nil
	}

	// A session without any admissible candidate is a conflict on its own
	if empty := domains.Empty(); len(empty) > 0 {
		counts := make(map[string]int)
		for _, session := range empty {
			for name, count := range domains.Rejections[session] {
				counts[name] += count
			}
		}
		partial, err := engine.extend(ctx, problem, domains, nil)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return finish(StatusInfeasible, partial, rankRejections(counts), empty[:1])
	}

	deficit, err := precheck(engine.catalog, problem.Data, domains)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeInternal, "bipartite pre-check failed")
	} else if deficit != nil {
		partial, err := engine.extend(ctx, problem, domains, nil)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return finish(StatusInfeasible, partial, []string{deficit.constraint}, deficit.sessions)
	}

	//** Searching
	components := decompose(problem.Data, domains)
	result.Stats.Components = len(components)
	results := make([]componentResult, len(components))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(engine.options.Workers)
	for i, component := range components {
		group.Go(func() error {
			s := newSearch(engine.catalog, problem.Data, problem.Pinned, budget, domains, component)
			outcome, err := s.run(groupCtx)
			if err != nil {
				return err
			}
			if outcome == exhausted {
				budget.halted.Store(true)
			}
			results[i] = componentResult{
				outcome:    outcome,
				values:     s.assignment(s.value),
				best:       s.assignment(s.best),
				blocking:   s.blocking,
				nodes:      s.nodes,
				backtracks: s.backtracks,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, appErrors.FromError(err)
	}

	status := StatusComplete
	assignments := make([]model.Assignment, 0, len(domains.Sessions))
	blocking := make(map[string]int)
	for _, component := range results {
		result.Stats.Nodes += component.nodes
		result.Stats.Backtracks += component.backtracks
		for name, count := range component.blocking {
			blocking[name] += count
		}
		switch component.outcome {
		case found:
			assignments = append(assignments, component.values...)
		case exhausted:
			status = StatusInfeasible
			assignments = append(assignments, component.best...)
		case stopped:
			if status != StatusInfeasible {
				status = StatusTimedOut
			}
			assignments = append(assignments, component.best...)
		}
	}
	// Components stopped because another one was proven infeasible count as infeasible too
	if status == StatusInfeasible {
		partial, err := engine.extend(ctx, problem, domains, assignments)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return finish(status, partial, rankRejections(blocking), nil)
	} else if status != StatusComplete {
		return finish(status, assignments, rankRejections(blocking), nil)
	}

	//** Complete
	merged := model.NewTimetable("", problem.Data)
	for _, assignment := range slices.Concat(problem.Pinned, assignments) {
		merged.Assign(assignment)
	}
	if evaluation := engine.catalog.Evaluate(merged); !evaluation.Clean() {
		if len(components) > 1 {
			return nil, appErrors.Clonef(appErrors.ErrModel, "independent components violate %d hard constraint(s): %s", len(evaluation.Hard), evaluation.Hard[0].Message)
		}
		return nil, appErrors.Clonef(appErrors.ErrInternal, "search produced %d hard violation(s): %s", len(evaluation.Hard), evaluation.Hard[0].Message)
	}

	improved, err := engine.improve(ctx, merged, domains, budget)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	result.Stats.Moves, result.Stats.Improved = improved.moves, improved.improved
	pinned := lo.SliceToMap(problem.Pinned, func(a model.Assignment) (model.SessionID, bool) { return a.Session, true })
	final := lo.Filter(improved.timetable.Assignments(), func(a model.Assignment, _ int) bool { return !pinned[a.Session] })
	return finish(StatusComplete, final, nil, nil)
}

// extend places the sessions an infeasible run left unassigned wherever they still fit next
// to the pinned and partial assignments, trying candidates in domain order.
func (engine *engine) extend(ctx context.Context, problem Problem, domains Domains, assignments []model.Assignment) ([]model.Assignment, error) {
	placed := slices.Concat(problem.Pinned, assignments)
	assigned := lo.SliceToMap(placed, func(a model.Assignment) (model.SessionID, bool) { return a.Session, true })
	extended := slices.Clone(assignments)
	for _, session := range domains.Sessions {
		if assigned[session] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, ok := lo.Find(domains.Candidates[session], func(candidate model.Assignment) bool {
			return !lo.SomeBy(placed, func(other model.Assignment) bool {
				_, clash := engine.catalog.Clash(problem.Data, candidate, other)
				return clash
			})
		})
		if ok {
			placed = append(placed, candidate)
			extended = append(extended, candidate)
		}
	}
	return extended, nil
}

// assemble builds the result timetable from the pinned assignments plus the new ones, names
// new assignments from the run's sequence and evaluates it.
func (engine *engine) assemble(ctx context.Context, result *Result, problem Problem, assignments []model.Assignment) {
	id := problem.TimetableId
	if id == "" {
		id = uuid.NewString()
	}
	timetable := model.NewTimetable(id, problem.Data)
	timetable.Version = problem.Version
	for _, assignment := range problem.Pinned {
		timetable.Assign(assignment)
	}
	for _, assignment := range assignments {
		timetable.Assign(assignment)
	}

	sequence := model.SequenceFrom(ctx)
	used := make(map[string]bool)
	for _, assignment := range timetable.Assignments() {
		used[assignment.Id] = true
	}
	for _, assignment := range timetable.Assignments() {
		if assignment.Id != "" {
			continue
		}
		for assignment.Id == "" || used[assignment.Id] {
			assignment.Id = sequence.Next("TT", problem.Data.CourseOf(assignment.Session).Department)
		}
		used[assignment.Id] = true
		timetable.Assign(assignment)
	}

	evaluation := engine.catalog.Evaluate(timetable)
	timetable.Score = evaluation.Score
	switch result.Status {
	case StatusComplete:
		timetable.State = model.StateComplete
	case StatusInfeasible:
		timetable.State = model.StateInfeasible
	default:
		timetable.State = model.StatePartial
	}

	result.Timetable = timetable
	result.Score = evaluation.Score
	result.Hard = evaluation.Hard
	result.Soft = evaluation.Soft
	result.Unassigned = timetable.Unassigned()
}
