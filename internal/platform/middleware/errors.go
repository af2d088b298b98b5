package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claimwise/claimwise/internal/platform/apperror"
)

// ErrorHandler converts handler errors into the API's failure envelope:
//
//	{"success": false, "error": {"message": ..., "details": [...]}}
//
// apperror kinds map to 404, 400, and 403. echo.HTTPError keeps its status.
// Anything else is a 500 with the cause logged but not leaked.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"
		var details []string

		var ae *apperror.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			message = ae.Message
			details = ae.Details
			switch ae.Kind {
			case apperror.KindNotFound:
				status = http.StatusNotFound
			case apperror.KindBadRequest:
				status = http.StatusBadRequest
			case apperror.KindForbidden:
				status = http.StatusForbidden
			}
		case errors.As(err, &he):
			status = he.Code
			message = fmt.Sprintf("%v", he.Message)
		default:
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		body := map[string]interface{}{
			"success": false,
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if len(details) > 0 {
			body["error"].(map[string]interface{})["details"] = details
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
