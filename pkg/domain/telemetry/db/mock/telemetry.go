package mock

import (
	"context"
	"errors"
	"time"

	"github.com/opst/ripen/pkg/domain"
	mocks "github.com/opst/ripen/pkg/domain/internal/db/mock"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
)

type TelemetryInterface struct {
	Impl struct {
		Existing       func(ctx context.Context, keys []domain.ReadingKey) (map[domain.ReadingKey]struct{}, error)
		Insert         func(ctx context.Context, readings []domain.Reading) (int, error)
		PickUnresolved func(
			ctx context.Context,
			cursor domain.EntityCursor,
			now time.Time,
			window time.Duration,
			resolve func(domain.EntityTimeline) ([]domain.Resolution, error),
		) (domain.EntityCursor, bool, error)
		Matured func(ctx context.Context, asOf time.Time) ([]domain.Reading, error)
		Counts  func(ctx context.Context) (domain.TelemetryCounts, error)
	}
	Calls struct {
		Existing       mocks.CallLog[[]domain.ReadingKey]
		Insert         mocks.CallLog[[]domain.Reading]
		PickUnresolved mocks.CallLog[struct {
			Cursor domain.EntityCursor
			Now    time.Time
			Window time.Duration
		}]
		Matured mocks.CallLog[time.Time]
		Counts  mocks.CallLog[struct{}]
	}
}

var _ kdb.TelemetryInterface = &TelemetryInterface{}

func NewTelemetryInterface() *TelemetryInterface {
	return &TelemetryInterface{}
}

func (m *TelemetryInterface) Existing(ctx context.Context, keys []domain.ReadingKey) (map[domain.ReadingKey]struct{}, error) {
	m.Calls.Existing = append(m.Calls.Existing, keys)
	if m.Impl.Existing != nil {
		return m.Impl.Existing(ctx, keys)
	}
	panic(errors.New("it should not be called"))
}

func (m *TelemetryInterface) Insert(ctx context.Context, readings []domain.Reading) (int, error) {
	m.Calls.Insert = append(m.Calls.Insert, readings)
	if m.Impl.Insert != nil {
		return m.Impl.Insert(ctx, readings)
	}
	panic(errors.New("it should not be called"))
}

func (m *TelemetryInterface) PickUnresolved(
	ctx context.Context,
	cursor domain.EntityCursor,
	now time.Time,
	window time.Duration,
	resolve func(domain.EntityTimeline) ([]domain.Resolution, error),
) (domain.EntityCursor, bool, error) {
	m.Calls.PickUnresolved = append(m.Calls.PickUnresolved, struct {
		Cursor domain.EntityCursor
		Now    time.Time
		Window time.Duration
	}{Cursor: cursor, Now: now, Window: window})
	if m.Impl.PickUnresolved != nil {
		return m.Impl.PickUnresolved(ctx, cursor, now, window, resolve)
	}
	panic(errors.New("it should not be called"))
}

func (m *TelemetryInterface) Matured(ctx context.Context, asOf time.Time) ([]domain.Reading, error) {
	m.Calls.Matured = append(m.Calls.Matured, asOf)
	if m.Impl.Matured != nil {
		return m.Impl.Matured(ctx, asOf)
	}
	panic(errors.New("it should not be called"))
}

func (m *TelemetryInterface) Counts(ctx context.Context) (domain.TelemetryCounts, error) {
	m.Calls.Counts = append(m.Calls.Counts, struct{}{})
	if m.Impl.Counts != nil {
		return m.Impl.Counts(ctx)
	}
	panic(errors.New("it should not be called"))
}
