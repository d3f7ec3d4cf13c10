package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

type AuthHandlerConfig struct {
	// FrontendURL is where the OAuth callback sends the browser afterwards.
	FrontendURL  string
	SecureCookie bool
}

type AuthHandler struct {
	auth    *usecase.AuthService
	issuer  *token.JWTIssuer
	cfg     AuthHandlerConfig
	newUUID func() string
}

func NewAuthHandler(auth *usecase.AuthService, issuer *token.JWTIssuer, cfg AuthHandlerConfig) *AuthHandler {
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &AuthHandler{auth: auth, issuer: issuer, cfg: cfg, newUUID: uuid.NewString}
}

func (h *AuthHandler) Register(g *echo.Group) {
	g.POST("/register", h.SignUp)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me, RequireUser(h.issuer))
	g.GET("/google", h.GoogleRedirect)
	g.GET("/google/callback", h.GoogleCallback)
}

type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type publicUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type sessionResponse struct {
	User  publicUser `json:"user"`
	Token string     `json:"token"`
}

type meResponse struct {
	User publicUser `json:"user"`
}

func toPublicUser(u domain.User) publicUser {
	return publicUser{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

func (h *AuthHandler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.auth.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	}
	if err != nil {
		return err
	}
	h.setSessionCookie(c, session)
	return ok(c, sessionResponse{User: toPublicUser(session.User), Token: session.Token})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setSessionCookie(c, session)
	return ok(c, sessionResponse{User: toPublicUser(session.User), Token: session.Token})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     token.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return message(c, "Logged out successfully")
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.auth.Me(c.Request().Context(), currentUser(c))
	if errors.Is(err, domain.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	if err != nil {
		return err
	}
	return ok(c, meResponse{User: toPublicUser(user)})
}

// GoogleRedirect starts the OAuth flow. The state is echoed back by Google and
// checked against a short-lived cookie.
func (h *AuthHandler) GoogleRedirect(c echo.Context) error {
	state := h.newUUID()
	authURL, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, authURL)
}

func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Authorization code not provided")
	}
	if cookie, err := c.Cookie(stateCookieName); err == nil && cookie.Value != c.QueryParam("state") {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid OAuth state")
	}

	session, err := h.auth.GoogleCallback(c.Request().Context(), code)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to get user information").SetInternal(err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to exchange authorization code").SetInternal(err)
	case err != nil:
		return err
	}
	log.WithCtx(log.WithUserID(c.Request().Context(), session.User.ID)).Info("google login completed", zap.Bool("verified", session.User.IsEmailVerified))

	h.setSessionCookie(c, session)
	c.SetCookie(&http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
	return c.Redirect(http.StatusFound, h.cfg.FrontendURL+"/dashboard?token="+url.QueryEscape(session.Token))
}

func (h *AuthHandler) setSessionCookie(c echo.Context, session usecase.Session) {
	c.SetCookie(&http.Cookie{
		Name:     token.CookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(h.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
