package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
	"github.com/opst/ripen/pkg/auth"
	"github.com/opst/ripen/pkg/domain"
	kdb "github.com/opst/ripen/pkg/domain/telemetry/db"
	"github.com/opst/ripen/pkg/ingest"
)

type Ingester interface {
	Ingest(ctx context.Context, path ingest.Path, batch []domain.Reading) (ingest.Result, error)
}

// IngestHandler accepts a batch of readings.
//
// Query "path" selects the ingestion path ("online" by default).
// The simulated path needs the admin scope.
func IngestHandler(ingester Ingester) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if err := requireJSON(req); err != nil {
			return err
		}

		path, err := ingest.AsPath(c.QueryParam("path"))
		if err != nil {
			return apierr.BadRequest(`query "path" should be "online" or "simulated"`, err)
		}
		if path == ingest.PathSimulated {
			if claims, ok := auth.ClaimsOf(c); !ok || !claims.Has(auth.ScopeAdmin) {
				return apierr.NewErrorMessage(
					http.StatusForbidden, "forbidden",
					apierr.WithAdvice(`ingesting simulated telemetry needs scope "admin".`),
					apierr.WithError(auth.ErrInsufficientScope),
				)
			}
		}

		payload := []apitelemetry.Reading{}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			return apierr.BadRequest("can not understand the requested json. it should be an array of readings.", err)
		}
		batch, err := apitelemetry.AsDomain(payload)
		if err != nil {
			return schemaViolation(err)
		}

		result, err := ingester.Ingest(req.Context(), path, batch)
		if err != nil {
			if errors.Is(err, domain.ErrBatchTooLarge) {
				return apierr.TooLarge("split the batch into smaller ones.", err)
			}
			if errors.Is(err, domain.ErrSchemaViolation) {
				return schemaViolation(err)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, apitelemetry.IngestResult{
			Received:          result.Received,
			Inserted:          result.Inserted,
			DuplicateInBatch:  result.DuplicateInBatch,
			DuplicateExisting: result.DuplicateExisting,
		})
	}
}

// TelemetryStatusHandler reports counts of readings by label state.
func TelemetryStatusHandler(store kdb.TelemetryInterface, window time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		counts, err := store.Counts(c.Request().Context())
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apitelemetry.ComposeStatus(counts, window))
	}
}
