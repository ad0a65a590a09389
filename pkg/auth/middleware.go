package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/ripen/pkg/api/errors"
)

const claimsKey = "ripen/auth/claims"

// Middleware rejects requests without a valid bearer token granting the scope.
//
// Verified claims are put into the context. Get them with [ClaimsOf].
func Middleware(a *Authority, required Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apierr.Unauthorized("bearer token is required", nil)
			}
			claims, err := a.Verify(token)
			if err != nil {
				return apierr.Unauthorized("token is not acceptable", err)
			}
			if !claims.Has(required) {
				return apierr.NewErrorMessage(
					http.StatusForbidden, "forbidden",
					apierr.WithAdvice("scope \""+string(required)+"\" is required."),
					apierr.WithError(ErrInsufficientScope),
				)
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsOf returns claims verified by [Middleware].
func ClaimsOf(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(claimsKey).(*Claims)
	return claims, ok
}
