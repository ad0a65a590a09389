package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	apimodels "github.com/opst/ripen/pkg/api/types/models"
	apitraining "github.com/opst/ripen/pkg/api/types/training"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/training"
)

type Trainer interface {
	Run(ctx context.Context, asOf time.Time) (training.Summary, error)
}

// TrainHandler runs a training job synchronously.
//
// The body is optional.
func TrainHandler(trainer Trainer) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		reqBody := apitraining.Request{}
		if err := json.NewDecoder(req.Body).Decode(&reqBody); err != nil && !errors.Is(err, io.EOF) {
			return apierr.BadRequest(`can not understand the requested json. it should be {"as_of": "RFC3339 date-time"} or empty.`, err)
		}
		var asOf time.Time
		if reqBody.AsOf != nil {
			asOf = reqBody.AsOf.Time()
		}

		summary, err := trainer.Run(req.Context(), asOf)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrLocked):
				return apierr.Conflict(
					"training job is in progress",
					apierr.WithAdvice("wait for it and retry."),
					apierr.WithError(err),
				)
			case errors.Is(err, domain.ErrInsufficientData):
				return apierr.Unprocessable(
					"insufficient data",
					apierr.WithAdvice("wait for more labels to mature."),
					apierr.WithError(err),
				)
			case errors.Is(err, training.ErrAsOfInFuture):
				return apierr.BadRequest("as_of should not be in the future.", err)
			default:
				return apierr.InternalServerError(err)
			}
		}

		return c.JSON(http.StatusOK, apitraining.Summary{
			Version:          apimodels.ComposeDetail(summary.Version),
			Promoted:         summary.Promoted,
			Decision:         summary.Decision,
			ResolvedLabels:   summary.Resolved.ResolvedCount,
			ResolvedPositive: summary.Resolved.PositiveCount,
			DroppedRows:      summary.Dropped,
		})
	}
}
