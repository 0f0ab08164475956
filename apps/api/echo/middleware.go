package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context principal")
			}
			if !p.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// integrationMiddleware answers 503 while the external service behind the route
// lacks its setting, before any upload is read.
func integrationMiddleware(check func() error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := check(); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
