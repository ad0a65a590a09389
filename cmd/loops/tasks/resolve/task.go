package resolve

import (
	"context"
	"time"

	"github.com/opst/ripen/cmd/loops/recurring"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/labels"
	"go.uber.org/zap"
)

type Stepper interface {
	Step(ctx context.Context, cursor domain.EntityCursor, now time.Time) (domain.EntityCursor, labels.Result, bool, error)
}

var _ Stepper = &labels.Resolver{}

// initial value for task
func Seed() domain.EntityCursor {
	return domain.EntityCursor{}
}

// Task resolves labels of one entity per cycle, walking entities round robin.
func Task(logger *zap.Logger, resolver Stepper, clock func() time.Time) recurring.Task[domain.EntityCursor] {
	return func(ctx context.Context, cursor domain.EntityCursor) (domain.EntityCursor, bool, error) {
		next, result, picked, err := resolver.Step(ctx, cursor, clock())
		if err != nil {
			return cursor, false, err
		}
		if !picked {
			logger.Debug("nothing to resolve")
			return next, false, nil
		}
		if 0 < result.ResolvedCount {
			logger.Info(
				"labels resolved",
				zap.Int64("entity_id", next.Head),
				zap.Int("resolved", result.ResolvedCount),
				zap.Int("positive", result.PositiveCount),
			)
		}
		return next, true, nil
	}
}
