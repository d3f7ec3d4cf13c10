package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/memstore"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

func TestConversationService_CreateDefaults(t *testing.T) {
	svc := NewConversationService(memstore.New(), testPolicy())
	ctx := context.Background()

	c, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConversationTitle, c.Title)
	assert.Equal(t, "m1", c.Model)
	assert.Equal(t, "u1", c.UserID)

	c, err = svc.Create(ctx, "u1", "Trip", "custom")
	require.NoError(t, err)
	assert.Equal(t, "Trip", c.Title)
	assert.Equal(t, "custom", c.Model)
}

func TestConversationService_CRUD(t *testing.T) {
	svc := NewConversationService(memstore.New(), testPolicy())
	ctx := context.Background()

	c, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, "u1", c.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)

	_, err = svc.Rename(ctx, "u1", c.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Rename(ctx, "u2", c.ID, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, "u1", c.ID))
	_, err = svc.Get(ctx, "u1", c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationService_ListIsCapped(t *testing.T) {
	svc := NewConversationService(memstore.New(), testPolicy())
	ctx := context.Background()
	for i := 0; i < ConversationListLimit+5; i++ {
		_, err := svc.Create(ctx, "u1", "", "")
		require.NoError(t, err)
	}
	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, ConversationListLimit)
}

func TestConversationService_AddMessages(t *testing.T) {
	svc := NewConversationService(memstore.New(), testPolicy())
	ctx := context.Background()
	c, err := svc.Create(ctx, "u1", "", "")
	require.NoError(t, err)

	msg, err := svc.AddMessage(ctx, "u1", c.ID, TurnInput{Role: domain.UserRole, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.TextMessage, msg.Type)
	assert.Equal(t, c.ID, msg.ConversationID)

	stored, err := svc.AddMessages(ctx, "u1", c.ID, []TurnInput{
		{Role: domain.AssistantRole, Content: "hello"},
		{Role: domain.UserRole, Content: "look", Type: domain.ImageMessage, Metadata: &domain.MessageMetadata{ImageURL: "https://x/y.png"}},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	_, err = svc.AddMessages(ctx, "u1", c.ID, []TurnInput{{Role: domain.UserRole, Content: "ok"}, {Role: "tool", Content: "bad"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.AddMessages(ctx, "u1", c.ID, []TurnInput{{Role: domain.UserRole, Content: "ok", Type: "video"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.AddMessages(ctx, "u1", c.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3, "a rejected batch stores nothing")
	assert.Equal(t, "https://x/y.png", got.Messages[2].Metadata.ImageURL)
}
