package constraint

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/model"
)

// Catalog is the registry the engine consults. Constraints can be added or removed without the
// engine knowing about any concrete variant.
type Catalog interface {
	Add(constraint Constraint)
	// Remove drops every constraint with the given code and reports whether one existed
	Remove(code Code) bool
	Constraints() []Constraint
	Hard() []Constraint
	Soft() []Constraint
	// Admits returns the first unary hard constraint rejecting the candidate, if any
	Admits(data *model.Dataset, candidate model.Assignment) (Constraint, bool)
	// Clash returns the first pairwise hard constraint forbidding a and b together, if any
	Clash(data *model.Dataset, a, b model.Assignment) (Constraint, bool)
	Evaluate(timetable *model.Timetable) Evaluation
	Score(timetable *model.Timetable) float64
}

// Evaluation is the verdict of a catalog on a timetable.
type Evaluation struct {
	Hard  []Violation
	Soft  []Violation
	Score float64
}

// Clean reports whether no hard constraint is violated.
func (evaluation Evaluation) Clean() bool { return len(evaluation.Hard) == 0 }

type catalog struct {
	mu          sync.RWMutex
	constraints []Constraint
}

func NewCatalog(constraints ...Constraint) Catalog {
	return &catalog{constraints: slices.Clone(constraints)}
}

// NewDefaultCatalog registers every built-in constraint.
func NewDefaultCatalog(weights Weights) Catalog {
	return NewCatalog(
		NewTeacherOverlap(),
		NewRoomOverlap(),
		NewClassOverlap(),
		NewAvailability(),
		NewCapacity(),
		NewRoomType(),
		NewQualification(),
		NewBackToBack(weights.BackToBack),
		NewMaxDaily(weights.MaxDaily),
		NewClassLoad(weights.ClassLoad),
		NewTeacherLoad(weights.TeacherLoad),
	)
}

func (catalog *catalog) Add(constraint Constraint) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.constraints = append(catalog.constraints, constraint)
}

func (catalog *catalog) Remove(code Code) bool {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	before := len(catalog.constraints)
	catalog.constraints = lo.Reject(catalog.constraints, func(constraint Constraint, _ int) bool { return constraint.Code() == code })
	return len(catalog.constraints) < before
}

func (catalog *catalog) Constraints() []Constraint {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	return slices.Clone(catalog.constraints)
}

func (catalog *catalog) Hard() []Constraint {
	return lo.Filter(catalog.Constraints(), func(constraint Constraint, _ int) bool { return constraint.Kind() == Hard })
}

func (catalog *catalog) Soft() []Constraint {
	return lo.Filter(catalog.Constraints(), func(constraint Constraint, _ int) bool { return constraint.Kind() == Soft })
}

func (catalog *catalog) Admits(data *model.Dataset, candidate model.Assignment) (Constraint, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	for _, constraint := range catalog.constraints {
		if filter, ok := constraint.(Filter); ok && constraint.Kind() == Hard && !filter.Admits(data, candidate) {
			return constraint, false
		}
	}
	return nil, true
}

func (catalog *catalog) Clash(data *model.Dataset, a, b model.Assignment) (Constraint, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	for _, constraint := range catalog.constraints {
		if pairwise, ok := constraint.(Pairwise); ok && constraint.Kind() == Hard && pairwise.Clash(data, a, b) {
			return constraint, true
		}
	}
	return nil, false
}

func (catalog *catalog) Evaluate(timetable *model.Timetable) Evaluation {
	evaluation := Evaluation{Hard: make([]Violation, 0), Soft: make([]Violation, 0)}
	for _, constraint := range catalog.Constraints() {
		if constraint.Kind() == Soft && constraint.Weight() == 0 {
			continue
		}
		violations := constraint.Evaluate(timetable)
		if constraint.Kind() == Hard {
			evaluation.Hard = append(evaluation.Hard, violations...)
			continue
		}
		evaluation.Soft = append(evaluation.Soft, violations...)
		evaluation.Score += lo.SumBy(violations, func(violation Violation) float64 { return violation.Penalty })
	}
	sortViolations(evaluation.Hard)
	sortViolations(evaluation.Soft)
	return evaluation
}

// Score is the weighted soft penalty of the timetable: lower is better.
func (catalog *catalog) Score(timetable *model.Timetable) float64 {
	score := 0.0
	for _, constraint := range catalog.Soft() {
		if constraint.Weight() == 0 {
			continue
		}
		score += lo.SumBy(constraint.Evaluate(timetable), func(violation Violation) float64 { return violation.Penalty })
	}
	return score
}
