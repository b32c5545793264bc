package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
)

type errorResponse struct {
	Message  string `json:"message"`
	MoreInfo any    `json:"moreInfo,omitempty"`
}

// ErrorHandler renders every error returned by a handler or middleware.
// Domain errors keep their status and message, echo's own errors keep their
// code, and anything else becomes an opaque 500.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := translate(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

func translate(err error) (int, errorResponse) {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return ae.Status, errorResponse{Message: ae.Message, MoreInfo: ae.MoreInfo}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, errorResponse{Message: "internal server error"}
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorResponse{Message: msg}
	}
	return http.StatusInternalServerError, errorResponse{Message: "internal server error"}
}
