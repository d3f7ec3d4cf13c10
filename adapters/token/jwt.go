package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const (
	claimSubject      = "sub"
	claimUserID       = "user_id"
	claimType         = "typ"
	claimVoice        = "voice"
	claimInstructions = "instructions"

	// CookieName is where browsers keep the session token.
	CookieName = "token"
)

// JWTIssuer signs and verifies HS256 tokens.
type JWTIssuer struct {
	secret []byte
}

func NewJWTIssuer(secret string) (*JWTIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &JWTIssuer{secret: []byte(secret)}, nil
}

func (j *JWTIssuer) Issue(c domain.TokenClaims, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}
	if c.Type == "" {
		c.Type = domain.SessionToken
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		claimSubject: c.UserID,
		claimUserID:  c.UserID,
		claimType:    string(c.Type),
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	if c.Voice != "" {
		claims[claimVoice] = c.Voice
	}
	if c.Instructions != "" {
		claims[claimInstructions] = c.Instructions
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, time.Unix(expiresAt.Unix(), 0).UTC(), nil
}

func (j *JWTIssuer) Verify(raw string) (domain.TokenClaims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return domain.TokenClaims{}, domain.ErrInvalidToken
	}
	return fromClaims(claims)
}

func fromClaims(claims jwt.MapClaims) (domain.TokenClaims, error) {
	out := domain.TokenClaims{
		UserID:       claimString(claims, claimUserID),
		Type:         domain.TokenType(claimString(claims, claimType)),
		Voice:        claimString(claims, claimVoice),
		Instructions: claimString(claims, claimInstructions),
	}
	if out.UserID == "" {
		out.UserID = claimString(claims, claimSubject)
	}
	if out.Type == "" {
		out.Type = domain.SessionToken
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	if out.UserID == "" {
		return domain.TokenClaims{}, errors.New("user id missing")
	}
	return out, nil
}

// Middleware accepts a session token from the Authorization header or the
// session cookie.
func (j *JWTIssuer) Middleware(skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    j.secret,
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,cookie:" + CookieName,
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
		},
	})
}

// UserIDFromContext extracts the user id from a verified session token.
func UserIDFromContext(c echo.Context) (string, error) {
	tok, ok := c.Get("user").(*jwt.Token)
	if !ok || tok == nil || !tok.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	info, err := fromClaims(claims)
	if err != nil || info.Type != domain.SessionToken {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	return info.UserID, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
