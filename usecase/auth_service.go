package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const (
	DefaultRealtimeVoice        = "Puck"
	DefaultRealtimeInstructions = "You are a helpful assistant. Be conversational and natural."
)

type AuthConfig struct {
	SessionTTL  time.Duration
	RealtimeTTL time.Duration
}

// Session is an authenticated user plus the bearer token that proves it.
type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"-"`
}

type AuthService struct {
	users     domain.UserStore
	passwords domain.PasswordHasher
	tokens    domain.TokenIssuer
	oauth     domain.OAuthProvider
	cfg       AuthConfig
}

// NewAuthService builds the service. oauth may be nil when Google login is not
// configured.
func NewAuthService(users domain.UserStore, passwords domain.PasswordHasher, tokens domain.TokenIssuer, oauth domain.OAuthProvider, cfg AuthConfig) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.RealtimeTTL <= 0 {
		cfg.RealtimeTTL = time.Minute
	}
	return &AuthService{users: users, passwords: passwords, tokens: tokens, oauth: oauth, cfg: cfg}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return Session{}, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Session{}, fmt.Errorf("looking up user: %w", err)
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Provider:     domain.LocalAuth,
	})
	if err != nil {
		return Session{}, fmt.Errorf("creating user: %w", err)
	}
	log.WithCtx(log.WithUserID(ctx, user.ID)).Info("user registered")
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("looking up user: %w", err)
	}
	if user.Provider != domain.LocalAuth || user.PasswordHash == "" {
		return Session{}, domain.ErrOAuthOnly
	}
	if err := s.passwords.ComparePassword(user.PasswordHash, password); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// Authenticate verifies a session token and returns the user id it names.
func (s *AuthService) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	if claims.Type != domain.SessionToken || claims.UserID == "" {
		return "", domain.ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.oauth == nil {
		return "", domain.ErrOAuthDisabled
	}
	return s.oauth.AuthCodeURL(state), nil
}

// GoogleCallback exchanges an authorization code, then creates the user or links
// an existing account with the same email to Google.
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (Session, error) {
	if s.oauth == nil {
		return Session{}, domain.ErrOAuthDisabled
	}
	if strings.TrimSpace(code) == "" {
		return Session{}, fmt.Errorf("authorization code not provided: %w", domain.ErrInvalidInput)
	}
	profile, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return Session{}, fmt.Errorf("exchanging oauth code: %w", err)
	}
	if profile.Email == "" || profile.Name == "" {
		return Session{}, fmt.Errorf("failed to get user information: %w", domain.ErrInvalidInput)
	}

	email := normalizeEmail(profile.Email)
	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		user, err = s.users.CreateUser(ctx, domain.User{
			Name:            profile.Name,
			Email:           email,
			Avatar:          profile.Picture,
			Provider:        domain.GoogleAuth,
			ProviderID:      profile.ProviderID,
			IsEmailVerified: true,
		})
		if err != nil {
			return Session{}, fmt.Errorf("creating user: %w", err)
		}
		log.WithCtx(log.WithUserID(ctx, user.ID)).Info("user registered via google")
	case err != nil:
		return Session{}, fmt.Errorf("looking up user: %w", err)
	case user.Provider != domain.GoogleAuth:
		user.Provider = domain.GoogleAuth
		user.ProviderID = profile.ProviderID
		if profile.Picture != "" {
			user.Avatar = profile.Picture
		}
		user, err = s.users.UpdateUser(ctx, user)
		if err != nil {
			return Session{}, fmt.Errorf("linking user to google: %w", err)
		}
		log.WithCtx(log.WithUserID(ctx, user.ID)).Info("user linked to google")
	}
	return s.session(user)
}

// IssueRealtimeTicket returns a short-lived credential that admits one realtime
// voice session with the given voice and instructions.
func (s *AuthService) IssueRealtimeTicket(ctx context.Context, userID, voice, instructions string) (string, time.Time, error) {
	if strings.TrimSpace(voice) == "" {
		voice = DefaultRealtimeVoice
	}
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultRealtimeInstructions
	}
	token, expiresAt, err := s.tokens.Issue(domain.TokenClaims{
		UserID:       userID,
		Type:         domain.RealtimeToken,
		Voice:        voice,
		Instructions: instructions,
	}, s.cfg.RealtimeTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issuing realtime ticket: %w", err)
	}
	log.WithCtx(ctx).Debug("realtime ticket issued", zap.Time("expires_at", expiresAt))
	return token, expiresAt, nil
}

func (s *AuthService) VerifyRealtimeTicket(ticket string) (domain.RealtimeOptions, error) {
	claims, err := s.tokens.Verify(ticket)
	if err != nil {
		return domain.RealtimeOptions{}, err
	}
	if claims.Type != domain.RealtimeToken || claims.UserID == "" {
		return domain.RealtimeOptions{}, domain.ErrInvalidToken
	}
	return domain.RealtimeOptions{UserID: claims.UserID, Voice: claims.Voice, Instructions: claims.Instructions}, nil
}

func (s *AuthService) session(user domain.User) (Session, error) {
	token, expiresAt, err := s.tokens.Issue(domain.TokenClaims{UserID: user.ID, Type: domain.SessionToken}, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issuing session token: %w", err)
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// SessionTTL is how long issued session tokens stay valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}
