package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	apioutcomes "github.com/opst/ripen/pkg/api/types/outcomes"
	kdb "github.com/opst/ripen/pkg/domain/outcome/db"
)

// RecordOutcomesHandler accepts confirmed adverse events.
//
// Reporting a known event again is not an error.
func RecordOutcomesHandler(store kdb.OutcomeInterface, clock func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if err := requireJSON(req); err != nil {
			return err
		}

		payload := []apioutcomes.Event{}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			return apierr.BadRequest("can not understand the requested json. it should be an array of events.", err)
		}
		if len(payload) == 0 {
			return apierr.BadRequest("events are empty", nil)
		}
		events, err := apioutcomes.AsDomain(payload, clock())
		if err != nil {
			return schemaViolation(err)
		}

		recorded, err := store.Record(req.Context(), events)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apioutcomes.RecordResult{
			Received: len(events),
			Recorded: recorded,
		})
	}
}
