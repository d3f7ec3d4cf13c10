// Package oauth implements Google sign-in with the authorization code flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

type Google struct {
	cfg         *oauth2.Config
	userInfoURL string
}

// NewGoogle returns nil, nil when no client id is configured so callers can
// treat Google login as disabled.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" {
		return nil, nil
	}
	if cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google oauth requires client secret and redirect url")
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange trades code for a token and reads the user's profile with it.
func (g *Google) Exchange(ctx context.Context, code string) (domain.OAuthProfile, error) {
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("exchanging code: %w", domain.ErrInvalidCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return domain.OAuthProfile{}, err
	}
	resp, err := g.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return domain.OAuthProfile{}, fmt.Errorf("fetching userinfo: status %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("decoding userinfo: %w", err)
	}
	return domain.OAuthProfile{
		ProviderID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}
