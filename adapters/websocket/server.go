package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// TicketVerifier resolves a realtime ticket into the session it authorizes.
type TicketVerifier interface {
	VerifyRealtimeTicket(ticket string) (domain.RealtimeOptions, error)
}

// SessionRunner bridges one client socket to one provider session.
type SessionRunner interface {
	Execute(ctx context.Context, opts domain.RealtimeOptions, input <-chan domain.RealtimeFrame, output chan<- domain.RealtimeFrame) error
}

type ServerConfig struct {
	// MaxSessionsPerUser limits concurrent sessions per user; zero means no limit.
	MaxSessionsPerUser int
	// AllowedOrigins is the browser origin allowlist, shared with CORS. Empty or
	// "*" allows any origin. Requests without an Origin header are not browsers
	// and are always allowed.
	AllowedOrigins []string
}

type Server struct {
	upgrader websocket.Upgrader
	tickets  TicketVerifier
	sessions SessionRunner
	hub      *Hub
	cfg      ServerConfig
}

func NewServer(tickets TicketVerifier, sessions SessionRunner, cfg ServerConfig) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)},
		tickets:  tickets,
		sessions: sessions,
		hub:      NewHub(),
		cfg:      cfg,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), origin) {
				return true
			}
		}
		return false
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// Shutdown ends all live sessions.
func (s *Server) Shutdown() {
	s.hub.CloseAll()
}
