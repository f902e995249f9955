package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// clinicianMiddleware only lets accounts carrying the clinician role through.
func clinicianMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsClinician {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// providerMiddleware only lets accounts carrying the provider role through.
func providerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsProvider {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
