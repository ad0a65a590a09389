package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	apipredictions "github.com/opst/ripen/pkg/api/types/predictions"
	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/predict"
)

type Scorer interface {
	Score(ctx context.Context, readings []domain.Reading) ([]predict.Score, error)
}

// ScoreHandler scores readings with the active model. Readings are not stored.
func ScoreHandler(scorer Scorer) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if err := requireJSON(req); err != nil {
			return err
		}
		payload := []apitelemetry.Reading{}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			return apierr.BadRequest("can not understand the requested json. it should be an array of readings.", err)
		}
		readings, err := apitelemetry.AsDomain(payload)
		if err != nil {
			return schemaViolation(err)
		}

		scores, err := scorer.Score(req.Context(), readings)
		if err != nil {
			switch {
			case errors.Is(err, predict.ErrNoActiveModel):
				return apierr.NewErrorMessage(
					http.StatusServiceUnavailable, "no active model",
					apierr.WithAdvice("train a model first."),
					apierr.WithError(err),
				)
			case errors.Is(err, domain.ErrMissingFeatureSchema):
				return apierr.Unprocessable(
					"readings can not be scored with the active model",
					apierr.WithAdvice("send readings having all derived features."),
					apierr.WithError(err),
				)
			default:
				return apierr.InternalServerError(err)
			}
		}

		resp := make([]apipredictions.Score, 0, len(scores))
		for _, s := range scores {
			resp = append(resp, apipredictions.ComposeScore(s))
		}
		return c.JSON(http.StatusOK, resp)
	}
}
