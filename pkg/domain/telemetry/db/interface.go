package db

import (
	"context"
	"time"

	"github.com/opst/ripen/pkg/domain"
)

type TelemetryInterface interface {
	// Existing looks up readings with given keys in one query.
	//
	// # Returns
	//
	// - map[domain.ReadingKey]struct{}: keys found in the store.
	//
	// - error
	Existing(ctx context.Context, keys []domain.ReadingKey) (map[domain.ReadingKey]struct{}, error)

	// Insert readings. Readings whose key is already in the store are skipped silently.
	//
	// Labels of readings are stored as they are (LabelStatus of each reading).
	//
	// # Returns
	//
	// - int: how many readings are inserted actually.
	// The uniqueness constraint of the store decides, so concurrent inserts of a key make one winner.
	//
	// - error
	Insert(ctx context.Context, readings []domain.Reading) (int, error)

	// PickUnresolved picks an entity which has resolvable readings,
	// and resolves them with the callback.
	//
	// A reading is resolvable at now when its maturity window has passed,
	// or an outcome event (happened until now) is in the window.
	//
	// The entity is searched after the cursor (and wraps around).
	// The callback receives a consistent snapshot of unresolved readings and outcome events of the entity.
	// Returned resolutions are written only to unresolved readings.
	//
	// # Args
	//
	// - ctx
	//
	// - cursor: where to start searching.
	//
	// - now: time to decide resolvability.
	//
	// - window: the maturity window.
	//
	// - resolve: callback deciding resolutions. If it returns error, nothing is written.
	//
	// # Returns
	//
	// - domain.EntityCursor: cursor pointing the picked entity.
	// If nothing is picked, the passed cursor is returned as it is.
	//
	// - bool: true if an entity is picked.
	//
	// - error: error from the callback or the store.
	// If the entity is being resolved by another one, it is domain.ErrLocked
	// (the cursor is moved to the entity, to skip it).
	PickUnresolved(
		ctx context.Context,
		cursor domain.EntityCursor,
		now time.Time,
		window time.Duration,
		resolve func(domain.EntityTimeline) ([]domain.Resolution, error),
	) (domain.EntityCursor, bool, error)

	// Matured returns readings resolved at or before asOf, ordered by (entity id, timestamp).
	Matured(ctx context.Context, asOf time.Time) ([]domain.Reading, error)

	// Counts returns numbers of readings by label state.
	Counts(ctx context.Context) (domain.TelemetryCounts, error)
}
