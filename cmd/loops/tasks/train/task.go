package train

import (
	"context"
	"errors"
	"time"

	"github.com/opst/ripen/cmd/loops/recurring"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/training"
	"go.uber.org/zap"
)

type Trainer interface {
	Run(ctx context.Context, asOf time.Time) (training.Summary, error)
}

var _ Trainer = &training.Job{}

// initial value for task
func Seed() struct{} {
	return struct{}{}
}

// Task runs a training job per cycle.
//
// A job never leaves backlog, so it always reports no update.
// Use "forever:COOLDOWN" to train periodically, or "backlog" to train once.
//
// Another job in progress and lack of matured rows are not errors of the loop.
func Task(logger *zap.Logger, trainer Trainer) recurring.Task[struct{}] {
	return func(ctx context.Context, value struct{}) (struct{}, bool, error) {
		summary, err := trainer.Run(ctx, time.Time{})
		switch {
		case errors.Is(err, domain.ErrLocked):
			logger.Info("another training job is in progress. skipped.")
			return value, false, nil
		case errors.Is(err, domain.ErrInsufficientData):
			logger.Info("not enough matured rows. skipped.", zap.Error(err))
			return value, false, nil
		case err != nil:
			return value, false, err
		}

		logger.Info(
			"model trained",
			zap.String("version_id", summary.Version.VersionId),
			zap.Bool("promoted", summary.Promoted),
			zap.String("reason", summary.Decision.Reason),
			zap.Int("rows", summary.Version.RowCount),
		)
		return value, false, nil
	}
}
