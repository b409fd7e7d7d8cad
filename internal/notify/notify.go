package notify

import (
	"context"
	"errors"

	"assessment-engine/internal/domain"
	"go.uber.org/zap"
)

// Notifier mirrors app.Notifier so this package stays free of app imports.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// LogNotifier writes events to the log. It stands in for the delivery collaborator when
// nothing else is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, e domain.Event) error {
	n.log.Info("attempt event",
		zap.String("event", string(e.Type)),
		zap.String("attempt_id", e.AttemptID),
		zap.String("quiz_id", e.QuizID),
		zap.String("learner_id", e.LearnerID),
		zap.String("state", string(e.State)),
		zap.Int("points", e.Points),
		zap.String("percentage", e.Percentage.StringFixed(2)),
		zap.Bool("passed", e.Passed))
	return nil
}

// Fanout delivers each event to every notifier, even when some fail.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
