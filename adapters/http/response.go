package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, Response{Success: true, Message: msg})
}

// ErrorHandler renders any handler error as {success:false, error}. Classified
// provider failures keep their status and client-safe message; anything
// unrecognized becomes a 500 without detail.
func ErrorHandler(err error, c echo.Context) {
	ctx := c.Request().Context()
	if c.Response().Committed {
		log.WithCtx(ctx).Debug("error after response was committed", zap.Error(err))
		return
	}

	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.WithCtx(ctx).Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	var classified *usecase.ClassifiedError
	if errors.As(err, &classified) && classified.RetryAfterSeconds > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(classified.RetryAfterSeconds))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, Response{Success: false, Error: msg})
	}
	if writeErr != nil {
		log.WithCtx(ctx).Warn("failed to write error response", zap.Error(writeErr))
	}
}

func errorResponse(err error) (int, string) {
	var classified *usecase.ClassifiedError
	if errors.As(err, &classified) {
		return classified.HTTPStatus, classified.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he {
		case echo.ErrNotFound:
			return http.StatusNotFound, "Route not found"
		case echo.ErrStatusRequestEntityTooLarge:
			return he.Code, "Request body too large"
		}
		if s, ok := he.Message.(string); ok {
			return he.Code, s
		}
		return he.Code, http.StatusText(he.Code)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, inputReason(err)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusBadRequest, "Already exists"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, domain.ErrOAuthOnly):
		return http.StatusUnauthorized, "Please use OAuth login"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, domain.ErrOAuthDisabled):
		return http.StatusServiceUnavailable, "Google login is not configured"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// inputReason turns "title is required: invalid input" into "title is required".
func inputReason(err error) string {
	msg := err.Error()
	msg = strings.TrimSuffix(msg, ": "+domain.ErrInvalidInput.Error())
	if msg == "" || msg == domain.ErrInvalidInput.Error() {
		return "Invalid input"
	}
	return msg
}
