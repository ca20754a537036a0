package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/storecredit/errs"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// respondError writes err with the status its kind maps to. Upstream status
// codes and messages are passed through unchanged.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	status := errs.HTTPStatus(err)
	body := errorResponse{
		Error:   errs.KindOf(err).String(),
		Message: errs.Message(err),
	}
	if errs.KindOf(err) == errs.KindRemoteRejected {
		body.Status = status
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Error:   errs.KindInvalidInput.String(),
		Message: message,
	})
}
