package timetabler

import (
	"context"
	"sync"
	"time"

	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/internal/metrics"
	"github.com/limaJavier/timetabler/internal/notify"
	"github.com/limaJavier/timetabler/internal/store"
	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/engine"
	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
	"github.com/limaJavier/timetabler/pkg/report"
	"github.com/limaJavier/timetabler/pkg/sat"
)

type Options struct {
	Engine  engine.Options
	Repair  repair.Options
	Weights constraint.Weights
	// Shrink the conflicting group of infeasible runs to a minimal one with the SAT solver
	MinimalConflicts bool
}

func DefaultOptions() Options {
	return Options{
		Engine:           engine.DefaultOptions(),
		Repair:           repair.DefaultOptions(),
		Weights:          constraint.DefaultWeights(),
		MinimalConflicts: true,
	}
}

// Dependencies are the collaborators of a Timetabler. Every field is optional.
type Dependencies struct {
	Store    store.Store
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Solver   sat.SATSolver
	Log      logger.Logger
}

// Request is one schedule call. Zero fields fall back to the Timetabler options.
type Request struct {
	Dataset     *model.Dataset
	Weights     *constraint.Weights
	Budget      time.Duration
	Seed        int64
	TimetableId string
	Pinned      []model.Assignment
}

type Timetabler interface {
	Schedule(ctx context.Context, request Request) (*engine.Result, error)
	// Repair applies the delta to the current version of the timetable. Repairs of the same
	// timetable are serialized; a newer version given here replaces the current one first.
	Repair(ctx context.Context, timetable *model.Timetable, delta repair.Delta, budget time.Duration) (*repair.Outcome, error)
	Explain(outcome any) report.Report
	// Verify reports whether the timetable covers every session without hard violations.
	Verify(timetable *model.Timetable) bool
	// Open loads the latest stored version of a timetable.
	Open(ctx context.Context, id string, data *model.Dataset) (*model.Timetable, error)
}

type timetabler struct {
	options  Options
	deps     Dependencies
	catalog  constraint.Catalog
	repairer repair.Repairer
	log      logger.Logger

	mu    sync.Mutex
	lives map[string]*repair.Live
}

func NewTimetabler(options Options, deps Dependencies) (Timetabler, error) {
	if err := options.Weights.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid weights")
	} else if err := options.Engine.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid engine options")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopRecorder{}
	}
	if deps.Solver == nil {
		deps.Solver = sat.NewGiniSolver()
	}
	log := logger.OrNop(deps.Log)
	catalog := constraint.NewDefaultCatalog(options.Weights)
	return &timetabler{
		options:  options,
		deps:     deps,
		catalog:  catalog,
		repairer: repair.NewRepairer(catalog, options.Repair, log),
		log:      log,
		lives:    make(map[string]*repair.Live),
	}, nil
}

func (timetabler *timetabler) Schedule(ctx context.Context, request Request) (*engine.Result, error) {
	if request.Dataset == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a dataset is required")
	}

	catalog := timetabler.catalog
	if request.Weights != nil {
		if err := request.Weights.Validate(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeValidation, "invalid weights")
		}
		catalog = constraint.NewDefaultCatalog(*request.Weights)
	}
	options := timetabler.options.Engine
	if request.Budget > 0 {
		options.TimeBudget = request.Budget
	}
	if request.Seed != 0 {
		options.Seed = request.Seed
	}

	solver, err := engine.NewEngine(catalog, options, timetabler.log)
	if err != nil {
		return nil, err
	}
	problem := engine.Problem{Data: request.Dataset, Pinned: request.Pinned, TimetableId: request.TimetableId, Version: 1}
	// Rescheduling a stored timetable produces its next version
	if timetabler.deps.Store != nil && request.TimetableId != "" {
		versions, err := timetabler.deps.Store.Versions(ctx, request.TimetableId)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeInternal, "cannot read stored versions")
		} else if len(versions) > 0 {
			problem.Version = versions[len(versions)-1].Version + 1
		}
	}
	result, err := solver.Solve(ctx, problem)
	if err != nil {
		return nil, err
	}

	if result.Status == engine.StatusInfeasible && timetabler.options.MinimalConflicts {
		timetabler.refineConflict(ctx, catalog, problem, options.TimeBudget, result)
	}
	timetabler.deps.Metrics.RecordRun(result)

	if timetabler.deps.Store != nil && result.Timetable.Len() > 0 {
		if err := timetabler.deps.Store.Save(ctx, result.Timetable); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeInternal, "cannot store timetable")
		}
	}
	if result.Status == engine.StatusComplete {
		timetabler.mu.Lock()
		timetabler.lives[result.Timetable.Id] = repair.NewLive(result.Timetable, timetabler.repairer)
		timetabler.mu.Unlock()
	}
	return result, nil
}

// refineConflict replaces the conflicting group of an infeasible result with a minimal one.
// The engine's group is kept when the solver gives up.
func (timetabler *timetabler) refineConflict(ctx context.Context, catalog constraint.Catalog, problem engine.Problem, budget time.Duration, result *engine.Result) {
	if len(result.Conflict) == 1 {
		return
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	conflict, err := repair.MinimalConflict(ctx, catalog, problem, timetabler.deps.Solver)
	if err != nil {
		timetabler.log.Warnf("minimal conflict of run %s not computed: %v", result.RunID, err)
		return
	} else if len(conflict) > 0 {
		result.Conflict = conflict
	}
}

func (timetabler *timetabler) Repair(ctx context.Context, timetable *model.Timetable, delta repair.Delta, budget time.Duration) (*repair.Outcome, error) {
	if timetable == nil || delta == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a timetable and a delta are required")
	}
	live, err := timetabler.live(ctx, timetable)
	if err != nil {
		return nil, err
	}

	outcome, err := live.Repair(ctx, delta, budget)
	if err != nil {
		return nil, err
	}
	timetabler.deps.Metrics.RecordRepair(outcome)
	if outcome.Status != repair.StatusRepaired {
		return outcome, nil
	}

	if timetabler.deps.Store != nil {
		if err := timetabler.deps.Store.Save(ctx, outcome.Timetable); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeInternal, "cannot store repaired timetable")
		}
	}
	if timetabler.deps.Notifier != nil {
		for _, notice := range notify.Notices(outcome, time.Now().UTC()) {
			if err := timetabler.deps.Notifier.Notify(ctx, notice); err != nil {
				timetabler.log.Warnf("teacher %s not notified: %v", notice.Teacher, err)
			}
		}
	}
	return outcome, nil
}

func (timetabler *timetabler) live(ctx context.Context, timetable *model.Timetable) (*repair.Live, error) {
	timetabler.mu.Lock()
	live, ok := timetabler.lives[timetable.Id]
	if !ok {
		live = repair.NewLive(timetable, timetabler.repairer)
		timetabler.lives[timetable.Id] = live
	}
	timetabler.mu.Unlock()

	if ok {
		if err := live.Replace(ctx, timetable); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (timetabler *timetabler) Explain(outcome any) report.Report {
	return report.Explain(outcome)
}

func (timetabler *timetabler) Verify(timetable *model.Timetable) bool {
	return timetable.Covers() && timetabler.catalog.Evaluate(timetable).Clean()
}

func (timetabler *timetabler) Open(ctx context.Context, id string, data *model.Dataset) (*model.Timetable, error) {
	if timetabler.deps.Store == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no timetable store is configured")
	}
	timetable, err := timetabler.deps.Store.Load(ctx, id, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeValidation, "cannot open timetable")
	}
	return timetable, nil
}
