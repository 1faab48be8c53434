package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/response"
)

// ErrorHandler renders every error as {"success": false, "message": ...}.
// With hideInternal set, 500 responses carry a generic message.
func ErrorHandler(logger zerolog.Logger, hideInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolve(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Msg("request failed")
			if hideInternal {
				msg = "internal server error"
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = response.Error(c, status, msg)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func resolve(err error) (int, string) {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return apperrors.HTTPStatus(ae), ae.Message
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			if inner, ok := he.Internal.(*echo.HTTPError); ok {
				he = inner
			}
		}
		return he.Code, fmt.Sprintf("%v", he.Message)
	}
	return http.StatusInternalServerError, err.Error()
}
