package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
	apimodels "github.com/opst/ripen/pkg/api/types/models"
	"github.com/opst/ripen/pkg/domain"
)

type Registry interface {
	Get(ctx context.Context, versionId string) (domain.ModelVersion, error)
	List(ctx context.Context) ([]domain.ModelVersion, error)
	Rollback(ctx context.Context, versionId string) (domain.ModelVersion, error)
}

func ListModelsHandler(registry Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		mvs, err := registry.List(c.Request().Context())
		if err != nil {
			return apierr.InternalServerError(err)
		}
		resp := make([]apimodels.Detail, 0, len(mvs))
		for _, mv := range mvs {
			resp = append(resp, apimodels.ComposeDetail(mv))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func GetModelHandler(registry Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		mv, err := registry.Get(c.Request().Context(), c.Param(param))
		if errors.Is(err, domain.ErrVersionNotFound) {
			return apierr.NotFound()
		} else if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apimodels.ComposeDetail(mv))
	}
}

// ActivateModelHandler rolls back to a retired version.
func ActivateModelHandler(registry Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if err := requireJSON(req); err != nil {
			return err
		}
		body := apimodels.Activation{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return apierr.BadRequest(`can not understand the requested json. it should be {"version_id": "..."}`, err)
		}
		if body.VersionId == "" {
			return apierr.BadRequest(`"version_id" is required`, nil)
		}

		mv, err := registry.Rollback(req.Context(), body.VersionId)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrVersionNotFound):
				return apierr.NotFound()
			case errors.Is(err, domain.ErrVersionNotEligible):
				return apierr.Conflict(
					"the version can not be activated",
					apierr.WithAdvice("only retired versions can be rolled back to."),
					apierr.WithError(err),
				)
			case errors.Is(err, domain.ErrChampionChanged):
				return apierr.Conflict(
					"the active version is changing",
					apierr.WithAdvice("retry later."),
					apierr.WithError(err),
				)
			default:
				return apierr.InternalServerError(err)
			}
		}
		return c.JSON(http.StatusOK, apimodels.ComposeDetail(mv))
	}
}
