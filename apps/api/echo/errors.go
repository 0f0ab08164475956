package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/user"
)

var (
	errMissingToken     = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errSessionExpired   = echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	errRefreshExpired   = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound     = echo.NewHTTPError(http.StatusNotFound, "not found")
	errInvalidCreds     = echo.NewHTTPError(http.StatusBadRequest, "invalid credentials")
	errCannotDeleteSelf = echo.NewHTTPError(http.StatusForbidden, "you cannot delete your own profile")

	notFoundErrors = []error{
		user.ErrNotFound,
		academic.ErrPeriodNotFound,
		academic.ErrBatchNotFound,
		clustering.ErrResultNotFound,
	}
)

type configurationResponse struct {
	Error   string `json:"error"`
	Setting string `json:"setting"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message := errorResponse(err, translator)

		if code == http.StatusInternalServerError {
			msg := http.StatusText(http.StatusInternalServerError)
			args := []interface{}{errors.Wrap(err, msg)}
			if p, pErr := getContextPrincipal(ctx); pErr == nil {
				args = append(args, p)
			}
			logger.Error(fmt.Sprintf("%s: %v", msg, err), args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func errorResponse(err error, translator ut.Translator) (int, interface{}) {
	var (
		httpErr   *echo.HTTPError
		vErrs     validator.ValidationErrors
		valErr    *core.ValidationError
		confErr   *core.ConfigurationError
		authErr   *identity.AuthError
		upstreamE *core.UpstreamError
	)

	switch {
	case errors.As(err, &httpErr):
		if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
			httpErr = herr
		}
		return httpErr.Code, httpErr.Message

	case errors.As(err, &vErrs):
		fldErrs := make(map[string]string, len(vErrs))
		for _, vErr := range vErrs {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs

	case errors.As(err, &valErr):
		if len(valErr.Fields) > 0 {
			fldErrs := make(map[string]string, len(valErr.Fields))
			for _, fErr := range valErr.Fields {
				fldErrs[fErr.Field] = fErr.Error
			}
			return http.StatusBadRequest, fldErrs
		}
		return http.StatusBadRequest, valErr.Error()

	case errors.As(err, &confErr):
		return http.StatusServiceUnavailable, configurationResponse{
			Error:   confErr.Service + " is not configured",
			Setting: confErr.Setting,
		}

	case errors.Is(err, identity.ErrInvalidCredentials):
		return errInvalidCreds.Code, errInvalidCreds.Message

	case errors.Is(err, identity.ErrAdminRequired), errors.Is(err, enroll.ErrPolicyDenied):
		return http.StatusForbidden, errors.Cause(err).Error()

	case errors.Is(err, identity.ErrRunInProgress):
		return http.StatusConflict, identity.ErrRunInProgress.Error()

	case errors.Is(err, clustering.ErrNoValidRows):
		return http.StatusBadRequest, clustering.ErrNoValidRows.Error()

	case errors.Is(err, user.ErrNoAccount):
		return http.StatusConflict, user.ErrNoAccount.Error()

	case isNotFound(err):
		return http.StatusNotFound, errors.Cause(err).Error()

	case core.IsConnectivity(err):
		return http.StatusBadGateway, err.Error()

	case errors.As(err, &authErr):
		switch authErr.Kind {
		case identity.KindInvalidCredentials:
			return errInvalidCreds.Code, errInvalidCreds.Message
		case identity.KindPolicyDenied:
			return http.StatusForbidden, authErr.Error()
		case identity.KindRateLimited:
			return http.StatusTooManyRequests, authErr.Error()
		case identity.KindNetwork:
			return http.StatusBadGateway, authErr.Error()
		}
		if errors.As(err, &upstreamE) {
			return http.StatusBadGateway, authErr.Error()
		}

	case errors.As(err, &upstreamE):
		return http.StatusBadGateway, upstreamE.Error()
	}

	// any other error is a server error
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func isNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
