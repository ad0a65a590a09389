package main

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	httptestutil "github.com/opst/ripen/internal/testutils/http"
	"github.com/opst/ripen/pkg/auth"
	"github.com/opst/ripen/pkg/domain"
	outcomemock "github.com/opst/ripen/pkg/domain/outcome/db/mock"
	telemetrymock "github.com/opst/ripen/pkg/domain/telemetry/db/mock"
	"github.com/opst/ripen/pkg/ingest"
	"github.com/opst/ripen/pkg/predict"
	"github.com/opst/ripen/pkg/training"
	"github.com/opst/ripen/pkg/utils/try"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type stubIngester struct{ called int }

func (s *stubIngester) Ingest(_ context.Context, _ ingest.Path, batch []domain.Reading) (ingest.Result, error) {
	s.called += 1
	return ingest.Result{Received: len(batch), Inserted: len(batch)}, nil
}

type stubTrainer struct{ err error }

func (s stubTrainer) Run(context.Context, time.Time) (training.Summary, error) {
	return training.Summary{}, s.err
}

type stubRegistry struct{}

func (stubRegistry) Get(context.Context, string) (domain.ModelVersion, error) {
	return domain.ModelVersion{}, domain.ErrVersionNotFound
}

func (stubRegistry) List(context.Context) ([]domain.ModelVersion, error) {
	return []domain.ModelVersion{}, nil
}

func (stubRegistry) Rollback(context.Context, string) (domain.ModelVersion, error) {
	return domain.ModelVersion{}, domain.ErrVersionNotEligible
}

type stubScorer struct{}

func (stubScorer) Score(context.Context, []domain.Reading) ([]predict.Score, error) {
	return nil, predict.ErrNoActiveModel
}

const reading = `[{"entity_id": 1, "timestamp": 0, "lead_impedance_ohms": 500, "capture_threshold_v": 0.7, "r_wave_sensing_mv": 9, "battery_voltage_v": 2.8}]`

func TestServer(t *testing.T) {
	authority := auth.New([]byte("0123456789abcdef0123456789abcdef"), "ripen")
	operator := try.To(authority.Mint("op", time.Hour, auth.ScopeOperator)).OrFatal(t)
	admin := try.To(authority.Mint("admin", time.Hour, auth.ScopeAdmin)).OrFatal(t)
	stranger := try.To(
		auth.New([]byte("fedcba9876543210fedcba9876543210"), "ripen").Mint("op", time.Hour, auth.ScopeOperator),
	).OrFatal(t)

	build := func(t *testing.T) (*stubIngester, *prometheus.Registry, func(method, target, body string, token string) int) {
		ingester := &stubIngester{}
		telemetry := telemetrymock.NewTelemetryInterface()
		telemetry.Impl.Counts = func(context.Context) (domain.TelemetryCounts, error) {
			return domain.TelemetryCounts{}, nil
		}
		outcomes := outcomemock.NewOutcomeInterface()
		outcomes.Impl.Record = func(_ context.Context, events []domain.OutcomeEvent) (int, error) {
			return len(events), nil
		}
		reg := prometheus.NewRegistry()

		e := BuildServer(
			Backend{
				Ingester:       ingester,
				Telemetry:      telemetry,
				MaturityWindow: time.Hour,
				Outcomes:       outcomes,
				Trainer:        stubTrainer{err: domain.ErrLocked},
				Registry:       stubRegistry{},
				Scorer:         stubScorer{},
			},
			authority, reg, zap.NewNop(), "off",
		)

		serve := func(method, target, body string, token string) int {
			opts := []httptestutil.RequestOption{httptestutil.ContentType("application/json")}
			if token != "" {
				opts = append(opts, httptestutil.Bearer(token))
			}
			return httptestutil.Serve(e, method, target, strings.NewReader(body), opts...).Code
		}
		return ingester, reg, serve
	}

	type when struct {
		method string
		target string
		body   string
		token  string
	}
	theory := func(when when, then int) func(*testing.T) {
		return func(t *testing.T) {
			_, _, serve := build(t)
			if code := serve(when.method, when.target, when.body, when.token); code != then {
				t.Errorf("%s %s: (expected, actual) = (%d, %d)", when.method, when.target, then, code)
			}
		}
	}

	for name, testcase := range map[string]struct {
		when when
		then int
	}{
		"ingest without token is unauthorized": {
			when: when{method: http.MethodPost, target: "/api/telemetry/ingest", body: reading},
			then: http.StatusUnauthorized,
		},
		"ingest with a token of other key is unauthorized": {
			when: when{method: http.MethodPost, target: "/api/telemetry/ingest", body: reading, token: stranger},
			then: http.StatusUnauthorized,
		},
		"ingest by operator": {
			when: when{method: http.MethodPost, target: "/api/telemetry/ingest", body: reading, token: operator},
			then: http.StatusOK,
		},
		"ingest by operator on the simulated path is forbidden": {
			when: when{method: http.MethodPost, target: "/api/telemetry/ingest?path=simulated", body: reading, token: operator},
			then: http.StatusForbidden,
		},
		"ingest by admin on the simulated path": {
			when: when{method: http.MethodPost, target: "/api/telemetry/ingest?path=simulated", body: reading, token: admin},
			then: http.StatusOK,
		},
		"status is open": {
			when: when{method: http.MethodGet, target: "/api/telemetry/status"},
			then: http.StatusOK,
		},
		"outcomes without token is unauthorized": {
			when: when{method: http.MethodPost, target: "/api/outcomes", body: `[{"entity_id": 1, "event_time": 1}]`},
			then: http.StatusUnauthorized,
		},
		"outcomes by operator": {
			when: when{method: http.MethodPost, target: "/api/outcomes", body: `[{"entity_id": 1, "event_time": 1}]`, token: operator},
			then: http.StatusOK,
		},
		"training while locked is conflict": {
			when: when{method: http.MethodPost, target: "/api/training", token: operator},
			then: http.StatusConflict,
		},
		"training without token is unauthorized": {
			when: when{method: http.MethodPost, target: "/api/training"},
			then: http.StatusUnauthorized,
		},
		"models are open": {
			when: when{method: http.MethodGet, target: "/api/models/"},
			then: http.StatusOK,
		},
		"unknown model is not found": {
			when: when{method: http.MethodGet, target: "/api/models/v9"},
			then: http.StatusNotFound,
		},
		"activating not eligible version is conflict": {
			when: when{method: http.MethodPut, target: "/api/models/active", body: `{"version_id": "v1"}`, token: operator},
			then: http.StatusConflict,
		},
		"activating without token is unauthorized": {
			when: when{method: http.MethodPut, target: "/api/models/active", body: `{"version_id": "v1"}`},
			then: http.StatusUnauthorized,
		},
		"predictions without active model is unavailable": {
			when: when{method: http.MethodPost, target: "/api/predictions", body: reading},
			then: http.StatusServiceUnavailable,
		},
		"healthz": {
			when: when{method: http.MethodGet, target: "/healthz"},
			then: http.StatusOK,
		},
	} {
		t.Run(name, theory(testcase.when, testcase.then))
	}

	t.Run("unauthorized ingestion does not reach the ingester", func(t *testing.T) {
		ingester, _, serve := build(t)
		serve(http.MethodPost, "/api/telemetry/ingest", reading, "")
		if ingester.called != 0 {
			t.Errorf("ingester is called %d times", ingester.called)
		}
	})

	t.Run("metrics exposes collectors of the registry", func(t *testing.T) {
		_, reg, _ := build(t)
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ripen_test_total"})
		reg.MustRegister(counter)
		counter.Inc()

		// rebuild a server on the registry to check exposition.
		e := BuildServer(Backend{}, authority, reg, zap.NewNop(), "off")
		resp := httptestutil.Serve(e, http.MethodGet, "/metrics", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.Code)
		}
		if !strings.Contains(resp.Body.String(), "ripen_test_total 1") {
			t.Errorf("metric is not exposed:\n%s", resp.Body.String())
		}
	})
}
