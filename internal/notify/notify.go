package notify

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/internal/logger"
	"github.com/limaJavier/timetabler/pkg/model"
	"github.com/limaJavier/timetabler/pkg/repair"
)

// Notice tells one teacher how a repair changed their week.
type Notice struct {
	Teacher     string             `json:"teacher"`
	TimetableId string             `json:"timetable_id"`
	Version     int                `json:"version"`
	Reason      string             `json:"reason"`
	Sessions    []model.Assignment `json:"sessions"`
	SentAt      time.Time          `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// Notices builds one notice per teacher affected by a successful repair. Each notice lists
// the assignments the teacher gained or lost.
func Notices(outcome *repair.Outcome, now time.Time) []Notice {
	if outcome.Status != repair.StatusRepaired {
		return nil
	}
	return lo.Map(outcome.Affected(), func(teacher string, _ int) Notice {
		notice := Notice{
			Teacher:     teacher,
			TimetableId: outcome.Timetable.Id,
			Version:     outcome.Timetable.Version,
			Reason:      outcome.Delta.String(),
			SentAt:      now,
		}
		for _, change := range outcome.Changes {
			if change.After.Teacher == teacher {
				notice.Sessions = append(notice.Sessions, change.After)
			} else if change.Before.Teacher == teacher {
				notice.Sessions = append(notice.Sessions, change.Before)
			}
		}
		return notice
	})
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: logger.OrNop(log)}
}

func (notifier *LogNotifier) Notify(_ context.Context, notice Notice) error {
	notifier.log.Infof("notify %s: timetable %s version %d changed (%s), %d session(s)",
		notice.Teacher, notice.TimetableId, notice.Version, notice.Reason, len(notice.Sessions))
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (multi Multi) Notify(ctx context.Context, notice Notice) error {
	var errs []error
	for _, notifier := range multi {
		if err := notifier.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
