package mock

import (
	"context"
	"errors"

	"github.com/opst/ripen/pkg/domain"
	mocks "github.com/opst/ripen/pkg/domain/internal/db/mock"
	kdb "github.com/opst/ripen/pkg/domain/outcome/db"
)

type OutcomeInterface struct {
	Impl struct {
		Record func(ctx context.Context, events []domain.OutcomeEvent) (int, error)
		Find   func(ctx context.Context, entityId int64) ([]domain.OutcomeEvent, error)
	}
	Calls struct {
		Record mocks.CallLog[[]domain.OutcomeEvent]
		Find   mocks.CallLog[int64]
	}
}

var _ kdb.OutcomeInterface = &OutcomeInterface{}

func NewOutcomeInterface() *OutcomeInterface {
	return &OutcomeInterface{}
}

func (m *OutcomeInterface) Record(ctx context.Context, events []domain.OutcomeEvent) (int, error) {
	m.Calls.Record = append(m.Calls.Record, events)
	if m.Impl.Record != nil {
		return m.Impl.Record(ctx, events)
	}
	panic(errors.New("it should not be called"))
}

func (m *OutcomeInterface) Find(ctx context.Context, entityId int64) ([]domain.OutcomeEvent, error) {
	m.Calls.Find = append(m.Calls.Find, entityId)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, entityId)
	}
	panic(errors.New("it should not be called"))
}
