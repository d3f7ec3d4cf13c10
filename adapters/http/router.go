package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
)

type RouterConfig struct {
	CORSOrigins []string
	BodyLimit   string
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64
	// MaxConcurrentStreams bounds concurrent streamed transcriptions.
	MaxConcurrentStreams int
}

// Handlers groups everything mounted by NewRouter.
type Handlers struct {
	AI            *AIHandler
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Health        *HealthHandler
	// Realtime serves the websocket upgrade; it authenticates with its own ticket.
	Realtime echo.HandlerFunc
}

func NewRouter(cfg RouterConfig, issuer *token.JWTIssuer, h Handlers) *echo.Echo {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "12M"
	}
	if cfg.MaxConcurrentStreams <= 0 {
		cfg.MaxConcurrentStreams = 10
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(RequestContext())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.PATCH, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			echo.HeaderContentLength,
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if h.Realtime != nil {
		e.GET(realtimePath, h.Realtime)
	}

	api := e.Group("/api/v1")
	if h.Health != nil {
		api.GET("/health", h.Health.Check)
	}
	if h.Auth != nil {
		h.Auth.Register(api.Group("/auth"))
	}
	requireUser := RequireUser(issuer)
	if h.AI != nil {
		ai := api.Group("/ai", requireUser)
		h.AI.Register(ai)
		// Streamed transcription keeps a recognizer session open for the whole upload.
		ai.POST("/audio/speech-to-text/stream", h.AI.SpeechToTextStream, ConcurrencyLimit(cfg.MaxConcurrentStreams))
	}
	if h.Conversations != nil {
		h.Conversations.Register(api.Group("/conversations", requireUser))
	}
	return e
}
