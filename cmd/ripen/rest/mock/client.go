package mock

import (
	"context"
	"testing"
	"time"

	"github.com/opst/ripen/cmd/ripen/rest"
	apimodels "github.com/opst/ripen/pkg/api/types/models"
	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
	apitraining "github.com/opst/ripen/pkg/api/types/training"
	"github.com/opst/ripen/pkg/ingest"
)

type IngestArgs struct {
	Path  ingest.Path
	Batch []apitelemetry.Reading
}

type MockClient struct {
	t    *testing.T
	Impl struct {
		Ingest     func(ctx context.Context, path ingest.Path, batch []apitelemetry.Reading) (apitelemetry.IngestResult, error)
		ListModels func(ctx context.Context) ([]apimodels.Detail, error)
		Rollback   func(ctx context.Context, versionId string) (apimodels.Detail, error)
		Train      func(ctx context.Context, asOf *time.Time) (apitraining.Summary, error)
	}
	Calls struct {
		Ingest     []IngestArgs
		ListModels int
		Rollback   []string
		Train      []*time.Time
	}
}

var _ rest.RipenClient = &MockClient{}

func New(t *testing.T) *MockClient {
	return &MockClient{t: t}
}

func (m *MockClient) Ingest(ctx context.Context, path ingest.Path, batch []apitelemetry.Reading) (apitelemetry.IngestResult, error) {
	m.t.Helper()
	m.Calls.Ingest = append(m.Calls.Ingest, IngestArgs{Path: path, Batch: batch})
	if m.Impl.Ingest == nil {
		m.t.Fatal("Ingest is not implemented")
	}
	return m.Impl.Ingest(ctx, path, batch)
}

func (m *MockClient) ListModels(ctx context.Context) ([]apimodels.Detail, error) {
	m.t.Helper()
	m.Calls.ListModels += 1
	if m.Impl.ListModels == nil {
		m.t.Fatal("ListModels is not implemented")
	}
	return m.Impl.ListModels(ctx)
}

func (m *MockClient) Rollback(ctx context.Context, versionId string) (apimodels.Detail, error) {
	m.t.Helper()
	m.Calls.Rollback = append(m.Calls.Rollback, versionId)
	if m.Impl.Rollback == nil {
		m.t.Fatal("Rollback is not implemented")
	}
	return m.Impl.Rollback(ctx, versionId)
}

func (m *MockClient) Train(ctx context.Context, asOf *time.Time) (apitraining.Summary, error) {
	m.t.Helper()
	m.Calls.Train = append(m.Calls.Train, asOf)
	if m.Impl.Train == nil {
		m.t.Fatal("Train is not implemented")
	}
	return m.Impl.Train(ctx, asOf)
}
