package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const userIDKey = "auth_user_id"

// RequestContext copies the request id assigned by middleware.RequestID into
// the request context so every log line of the request carries it.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

// RequestLogger logs one line per request through zap.
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			logger := log.WithCtx(c.Request().Context())
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

// RequireUser verifies the session token and exposes the user id to handlers
// and to the request's logger.
func RequireUser(issuer *token.JWTIssuer) echo.MiddlewareFunc {
	verify := issuer.Middleware(nil)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(func(c echo.Context) error {
			userID, err := token.UserIDFromContext(c)
			if err != nil {
				return err
			}
			c.Set(userIDKey, userID)
			req := c.Request()
			c.SetRequest(req.WithContext(log.WithUserID(req.Context(), userID)))
			return next(c)
		})
	}
}

// ConcurrencyLimit rejects requests beyond max in flight. It guards the
// endpoints that hold a provider session open for the whole request.
func ConcurrencyLimit(max int) echo.MiddlewareFunc {
	semaphore := make(chan struct{}, max)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
				return next(c)
			default:
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
			}
		}
	}
}

func currentUser(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
