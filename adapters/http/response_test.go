package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"classified", usecase.Classify(&domain.ProviderError{HTTPStatus: http.StatusUnauthorized}), http.StatusUnauthorized, "Invalid AI provider API key. Please check your credentials."},
		{"http error", echo.NewHTTPError(http.StatusConflict, "taken"), http.StatusConflict, "taken"},
		{"route not found", echo.ErrNotFound, http.StatusNotFound, "Route not found"},
		{"body too large", echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, "Request body too large"},
		{"invalid input", fmt.Errorf("title is required: %w", domain.ErrInvalidInput), http.StatusBadRequest, "title is required"},
		{"bare invalid input", domain.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
		{"not found", fmt.Errorf("loading: %w", domain.ErrNotFound), http.StatusNotFound, "Not found"},
		{"oauth only", domain.ErrOAuthOnly, http.StatusUnauthorized, "Please use OAuth login"},
		{"unknown", errors.New("dial tcp 10.0.0.1:5432: refused"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := errorResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestErrorHandler_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "partial"))

	ErrorHandler(errors.New("late failure"), c)
	assert.Equal(t, "partial", rec.Body.String())
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Error)
}

type fixedCounter int

func (f fixedCounter) ClientCount() int { return int(f) }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(fixedCounter(3))
	h.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), rec)
	require.NoError(t, h.Check(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","timestamp":"2025-01-02T03:04:05Z","service":"cocoa-fruit-gateway","realtimeSessions":3}`, rec.Body.String())
}
