package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/ripen/cmd/ripend/handlers"
	"github.com/opst/ripen/pkg/auth"
	koutcomedb "github.com/opst/ripen/pkg/domain/outcome/db"
	ktelemetrydb "github.com/opst/ripen/pkg/domain/telemetry/db"
	"github.com/opst/ripen/pkg/utils/echoutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var API_ROOT = "/api"

func api(subpath string) string {
	return fmt.Sprintf("%s/%s", API_ROOT, strings.TrimPrefix(subpath, "/"))
}

// Backend is what the API server serves.
type Backend struct {
	Ingester       handlers.Ingester
	Telemetry      ktelemetrydb.TelemetryInterface
	MaturityWindow time.Duration
	Outcomes       koutcomedb.OutcomeInterface
	Trainer        handlers.Trainer
	Registry       handlers.Registry
	Scorer         handlers.Scorer
	Clock          func() time.Time
}

func BuildServer(
	backend Backend,
	authority *auth.Authority,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	loglevel string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	echoutil.SetLevel(e, loglevel)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(echoutil.LogHandlerFunc(logger))
	e.Use(middleware.Recover())

	clock := backend.Clock
	if clock == nil {
		clock = time.Now
	}
	operator := auth.Middleware(authority, auth.ScopeOperator)

	e.POST(api("telemetry/ingest"), handlers.IngestHandler(backend.Ingester), operator)
	e.GET(api("telemetry/status"), handlers.TelemetryStatusHandler(backend.Telemetry, backend.MaturityWindow))

	e.POST(api("outcomes"), handlers.RecordOutcomesHandler(backend.Outcomes, clock), operator)

	e.POST(api("training"), handlers.TrainHandler(backend.Trainer), operator)

	e.GET(api("models"), handlers.ListModelsHandler(backend.Registry))
	e.PUT(api("models/active"), handlers.ActivateModelHandler(backend.Registry), operator)
	e.GET(api("models/:versionId"), handlers.GetModelHandler(backend.Registry, "versionId"))

	e.POST(api("predictions"), handlers.ScoreHandler(backend.Scorer))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return e
}
