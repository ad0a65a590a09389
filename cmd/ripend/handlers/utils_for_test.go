package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/predict"
	"github.com/opst/ripen/pkg/training"
)

// assertHTTPError checks err is *echo.HTTPError with the code.
func assertHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	herr := new(echo.HTTPError)
	if !errors.As(err, &herr) {
		t.Fatalf("error is not *echo.HTTPError: %v", err)
	}
	if herr.Code != code {
		t.Errorf("unexpected status code: (expected, actual) = (%d, %d): %v", code, herr.Code, herr)
	}
	if _, ok := herr.Message.(apierr.ErrorMessage); !ok {
		t.Errorf("message is not ErrorMessage: %#v", herr.Message)
	}
	return herr
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.Code)
	}
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("response is not json: %s (%v)", resp.Body.String(), err)
	}
	return v
}

type fakeIngester struct {
	paths   []ingest.Path
	batches [][]domain.Reading
	result  ingest.Result
	err     error
}

func (f *fakeIngester) Ingest(_ context.Context, path ingest.Path, batch []domain.Reading) (ingest.Result, error) {
	f.paths = append(f.paths, path)
	f.batches = append(f.batches, batch)
	return f.result, f.err
}

type fakeTrainer struct {
	asOf    []time.Time
	summary training.Summary
	err     error
}

func (f *fakeTrainer) Run(_ context.Context, asOf time.Time) (training.Summary, error) {
	f.asOf = append(f.asOf, asOf)
	return f.summary, f.err
}

type fakeRegistry struct {
	versions    map[string]domain.ModelVersion
	order       []string
	rollback    []string
	rollbackErr error
}

func (f *fakeRegistry) Get(_ context.Context, versionId string) (domain.ModelVersion, error) {
	mv, ok := f.versions[versionId]
	if !ok {
		return mv, domain.ErrVersionNotFound
	}
	return mv, nil
}

func (f *fakeRegistry) List(context.Context) ([]domain.ModelVersion, error) {
	ret := []domain.ModelVersion{}
	for _, id := range f.order {
		ret = append(ret, f.versions[id])
	}
	return ret, nil
}

func (f *fakeRegistry) Rollback(_ context.Context, versionId string) (domain.ModelVersion, error) {
	f.rollback = append(f.rollback, versionId)
	if f.rollbackErr != nil {
		return domain.ModelVersion{}, f.rollbackErr
	}
	mv, ok := f.versions[versionId]
	if !ok {
		return mv, domain.ErrVersionNotFound
	}
	mv.Status = domain.Active
	return mv, nil
}

type fakeScorer struct {
	readings [][]domain.Reading
	scores   []predict.Score
	err      error
}

func (f *fakeScorer) Score(_ context.Context, readings []domain.Reading) ([]predict.Score, error) {
	f.readings = append(f.readings, readings)
	return f.scores, f.err
}
