package repair

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	appErrors "github.com/limaJavier/timetabler/pkg/errors"
	"github.com/limaJavier/timetabler/pkg/model"
)

// Live is the current version of one timetable. Repairs against it are serialized by an
// exclusive lease; each repair works on a clone and the result replaces the current version
// only when the repair succeeds, so readers never observe a half-repaired timetable.
// Deltas the current version satisfies stay active and bind every later repair.
type Live struct {
	lease    chan struct{}
	current  atomic.Pointer[model.Timetable]
	repairer Repairer
	// Guarded by the lease
	active []Delta
}

func NewLive(timetable *model.Timetable, repairer Repairer) *Live {
	live := &Live{lease: make(chan struct{}, 1), repairer: repairer}
	live.current.Store(timetable.Clone())
	return live
}

// Current returns a copy of the current version.
func (live *Live) Current() *model.Timetable {
	return live.current.Load().Clone()
}

// Replace installs a newer version obtained elsewhere; older versions are ignored. It waits
// for any repair in flight.
func (live *Live) Replace(ctx context.Context, timetable *model.Timetable) error {
	release, err := live.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if timetable.Version > live.current.Load().Version {
		live.current.Store(timetable.Clone())
		live.active = lo.Filter(live.active, func(delta Delta, _ int) bool { return len(Invalidated(timetable, delta)) == 0 })
	}
	return nil
}

// Active returns the deltas applied so far.
func (live *Live) Active() []Delta {
	release, err := live.acquire(context.Background())
	if err != nil {
		return nil
	}
	defer release()
	return slices.Clone(live.active)
}

func (live *Live) Repair(ctx context.Context, delta Delta, budget time.Duration) (*Outcome, error) {
	release, err := live.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	current := live.current.Load()
	outcome, err := live.repairer.Under(live.active...).Repair(ctx, current.Clone(), delta, budget)
	if err != nil {
		return nil, err
	}
	switch outcome.Status {
	case StatusRepaired:
		if !live.current.CompareAndSwap(current, outcome.Timetable.Clone()) {
			return nil, appErrors.Clone(appErrors.ErrInternal, "timetable changed while the lease was held")
		}
		live.active = append(live.active, delta)
	case StatusUnchanged:
		live.active = append(live.active, delta)
	}
	return outcome, nil
}

func (live *Live) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeCancelled, "waiting for the timetable lease")
	}
	select {
	case live.lease <- struct{}{}:
		return func() { <-live.lease }, nil
	case <-ctx.Done():
		return nil, appErrors.Wrap(ctx.Err(), appErrors.CodeCancelled, "waiting for the timetable lease")
	}
}
