package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/memstore"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type fakeOAuth struct {
	profile domain.OAuthProfile
	err     error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeOAuth) Exchange(context.Context, string) (domain.OAuthProfile, error) {
	return f.profile, f.err
}

func newAuth(t *testing.T, oauth domain.OAuthProvider) (*AuthService, *memstore.Store) {
	t.Helper()
	issuer, err := token.NewJWTIssuer("test-secret")
	require.NoError(t, err)
	store := memstore.New()
	return NewAuthService(store, hasher.NewBcrypt(4), issuer, oauth, AuthConfig{}), store
}

func TestAuth_RegisterLogin(t *testing.T) {
	svc, _ := newAuth(t, nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Ann", " Ann@Example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", session.User.Email)
	assert.Equal(t, domain.LocalAuth, session.User.Provider)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), session.ExpiresAt, time.Minute)

	_, err = svc.Register(ctx, "Ann", "ann@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	login, err := svc.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	userID, err := svc.Authenticate(login.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, userID)

	_, err = svc.Login(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	me, err := svc.Me(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", me.Name)
}

func TestAuth_GoogleCreatesThenLinks(t *testing.T) {
	oauth := &fakeOAuth{profile: domain.OAuthProfile{ProviderID: "g-1", Email: "bob@example.com", Name: "Bob", Picture: "https://img/bob"}}
	svc, store := newAuth(t, oauth)
	ctx := context.Background()

	url, err := svc.GoogleAuthURL("st")
	require.NoError(t, err)
	assert.Contains(t, url, "state=st")

	session, err := svc.GoogleCallback(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, domain.GoogleAuth, session.User.Provider)
	assert.True(t, session.User.IsEmailVerified)

	_, err = svc.Login(ctx, "bob@example.com", "anything")
	assert.ErrorIs(t, err, domain.ErrOAuthOnly)

	_, err = svc.Register(ctx, "Carl", "carl@example.com", "secret1")
	require.NoError(t, err)
	oauth.profile = domain.OAuthProfile{ProviderID: "g-2", Email: "carl@example.com", Name: "Carl"}
	linked, err := svc.GoogleCallback(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, domain.GoogleAuth, linked.User.Provider)

	stored, err := store.GetUserByEmail(ctx, "carl@example.com")
	require.NoError(t, err)
	assert.Equal(t, "g-2", stored.ProviderID)
}

func TestAuth_GoogleFailures(t *testing.T) {
	disabled, _ := newAuth(t, nil)
	_, err := disabled.GoogleAuthURL("s")
	assert.ErrorIs(t, err, domain.ErrOAuthDisabled)

	oauth := &fakeOAuth{}
	svc, _ := newAuth(t, oauth)
	_, err = svc.GoogleCallback(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.GoogleCallback(context.Background(), "code")
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "profile without email")

	oauth.err = errors.New("exchange failed")
	_, err = svc.GoogleCallback(context.Background(), "code")
	assert.Error(t, err)
}

func TestAuth_RealtimeTicket(t *testing.T) {
	svc, _ := newAuth(t, nil)
	ctx := context.Background()

	ticket, expiresAt, err := svc.IssueRealtimeTicket(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	opts, err := svc.VerifyRealtimeTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.RealtimeOptions{UserID: "u1", Voice: DefaultRealtimeVoice, Instructions: DefaultRealtimeInstructions}, opts)

	_, err = svc.Authenticate(ticket)
	assert.ErrorIs(t, err, domain.ErrInvalidToken, "a ticket is not a session")

	session, err := svc.Register(ctx, "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.VerifyRealtimeTicket(session.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken, "a session is not a ticket")
}
