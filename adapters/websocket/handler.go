package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

// Handler serves GET /ws/realtime?ticket=. The ticket is checked before the
// upgrade so a bad one gets a plain HTTP 401.
func (s *Server) Handler(c echo.Context) error {
	opts, err := s.tickets.VerifyRealtimeTicket(c.QueryParam("ticket"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired realtime ticket")
	}
	if !s.hub.TryAcquire(opts.UserID, s.cfg.MaxSessionsPerUser) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many realtime sessions")
	}
	defer s.hub.Release(opts.UserID)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.WithCtx(c.Request().Context()).Debug("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	client := NewClient(context.WithoutCancel(c.Request().Context()), conn, opts.UserID)
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	client.Run()

	output := make(chan domain.RealtimeFrame)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range output {
			if err := client.SendFrame(frame); err != nil {
				log.WithCtx(client.Context()).Debug("Dropping realtime frame", zap.Error(err))
			}
		}
	}()

	if err := s.sessions.Execute(client.Context(), opts, client.Inbound(), output); err != nil {
		log.WithCtx(client.Context()).Info("Realtime session ended with error", zap.Error(err))
	}
	close(output)
	wg.Wait()

	client.Close()
	<-client.Done()
	return nil
}
