package domain

import (
	"context"
	"time"
)

type AuthProvider string

const (
	LocalAuth  AuthProvider = "local"
	GoogleAuth AuthProvider = "google"
)

type User struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	PasswordHash    string       `json:"-"`
	Name            string       `json:"name"`
	Avatar          string       `json:"avatar,omitempty"`
	Provider        AuthProvider `json:"provider"`
	ProviderID      string       `json:"-"`
	IsEmailVerified bool         `json:"isEmailVerified"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
}

// OAuthProfile is the identity returned by an OAuth provider.
type OAuthProfile struct {
	ProviderID string
	Email      string
	Name       string
	Picture    string
}

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (OAuthProfile, error)
}

type TokenType string

const (
	SessionToken  TokenType = "session"
	RealtimeToken TokenType = "realtime"
)

// TokenClaims is what a verified token says about its bearer.
type TokenClaims struct {
	UserID       string
	Type         TokenType
	Voice        string
	Instructions string
	ExpiresAt    time.Time
}

type TokenIssuer interface {
	Issue(claims TokenClaims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (TokenClaims, error)
}
