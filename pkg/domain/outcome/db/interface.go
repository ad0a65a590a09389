package db

import (
	"context"

	"github.com/opst/ripen/pkg/domain"
)

type OutcomeInterface interface {
	// Record outcome events.
	//
	// Events are immutable. Recording an event with known event id is a no-op.
	//
	// # Returns
	//
	// - int: how many events are recorded newly.
	//
	// - error
	Record(ctx context.Context, events []domain.OutcomeEvent) (int, error)

	// Find events of the entity, ordered by event time.
	Find(ctx context.Context, entityId int64) ([]domain.OutcomeEvent, error)
}
