package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionCounter reports how many realtime sessions are live.
type SessionCounter interface {
	ClientCount() int
}

type HealthHandler struct {
	sessions SessionCounter
	now      func() time.Time
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions, now: time.Now}
}

type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Service          string    `json:"service"`
	RealtimeSessions int       `json:"realtimeSessions"`
}

func (h *HealthHandler) Check(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Timestamp: h.now().UTC(), Service: "cocoa-fruit-gateway"}
	if h.sessions != nil {
		resp.RealtimeSessions = h.sessions.ClientCount()
	}
	return c.JSON(http.StatusOK, resp)
}
