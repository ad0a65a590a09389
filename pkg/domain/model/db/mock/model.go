package mock

import (
	"context"
	"errors"

	"github.com/opst/ripen/pkg/domain"
	mocks "github.com/opst/ripen/pkg/domain/internal/db/mock"
	kdb "github.com/opst/ripen/pkg/domain/model/db"
)

type ModelInterface struct {
	Impl struct {
		Register func(ctx context.Context, mv domain.ModelVersion) error
		Get      func(ctx context.Context, versionId string) (domain.ModelVersion, error)
		Find     func(ctx context.Context) ([]domain.ModelVersion, error)
		Active   func(ctx context.Context) (*domain.ModelVersion, error)
		Activate func(
			ctx context.Context,
			versionId string,
			expectedChampion *string,
			eligible []domain.ModelStatus,
			reason string,
		) error
		Reject func(ctx context.Context, versionId string, reason string) error
	}
	Calls struct {
		Register mocks.CallLog[domain.ModelVersion]
		Get      mocks.CallLog[string]
		Find     mocks.CallLog[struct{}]
		Active   mocks.CallLog[struct{}]
		Activate mocks.CallLog[struct {
			VersionId        string
			ExpectedChampion *string
			Eligible         []domain.ModelStatus
			Reason           string
		}]
		Reject mocks.CallLog[struct {
			VersionId string
			Reason    string
		}]
	}
}

var _ kdb.ModelInterface = &ModelInterface{}

func NewModelInterface() *ModelInterface {
	return &ModelInterface{}
}

func (m *ModelInterface) Register(ctx context.Context, mv domain.ModelVersion) error {
	m.Calls.Register = append(m.Calls.Register, mv)
	if m.Impl.Register != nil {
		return m.Impl.Register(ctx, mv)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Get(ctx context.Context, versionId string) (domain.ModelVersion, error) {
	m.Calls.Get = append(m.Calls.Get, versionId)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, versionId)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Find(ctx context.Context) ([]domain.ModelVersion, error) {
	m.Calls.Find = append(m.Calls.Find, struct{}{})
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Active(ctx context.Context) (*domain.ModelVersion, error) {
	m.Calls.Active = append(m.Calls.Active, struct{}{})
	if m.Impl.Active != nil {
		return m.Impl.Active(ctx)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Activate(
	ctx context.Context,
	versionId string,
	expectedChampion *string,
	eligible []domain.ModelStatus,
	reason string,
) error {
	m.Calls.Activate = append(m.Calls.Activate, struct {
		VersionId        string
		ExpectedChampion *string
		Eligible         []domain.ModelStatus
		Reason           string
	}{
		VersionId: versionId, ExpectedChampion: expectedChampion, Eligible: eligible, Reason: reason,
	})
	if m.Impl.Activate != nil {
		return m.Impl.Activate(ctx, versionId, expectedChampion, eligible, reason)
	}
	panic(errors.New("it should not be called"))
}

func (m *ModelInterface) Reject(ctx context.Context, versionId string, reason string) error {
	m.Calls.Reject = append(m.Calls.Reject, struct {
		VersionId string
		Reason    string
	}{VersionId: versionId, Reason: reason})
	if m.Impl.Reject != nil {
		return m.Impl.Reject(ctx, versionId, reason)
	}
	panic(errors.New("it should not be called"))
}
