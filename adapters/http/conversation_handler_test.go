package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

func TestConversations_Lifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.login(t, "ada@example.com")

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeData[domain.Conversation](t, rec)
	assert.Equal(t, "New Conversation", conv.Title)
	assert.Equal(t, "m1", conv.Model)

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"role":"user","content":"hi"}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.TextMessage, decodeData[domain.Message](t, rec).Type)

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages/batch",
		`{"messages":[{"role":"assistant","content":"hello"},{"role":"user","content":"draw","type":"image","metadata":{"imageUrl":"https://img.example.com/a.png"}}]}`, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decodeData[[]domain.Message](t, rec), 2)

	rec = s.do(http.MethodPatch, "/api/v1/conversations/"+conv.ID, `{"title":"Renamed"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decodeData[domain.Conversation](t, rec).Title)

	rec = s.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[domain.Conversation](t, rec)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, []domain.Role{domain.UserRole, domain.AssistantRole, domain.UserRole},
		[]domain.Role{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role})
	require.NotNil(t, got.Messages[2].Metadata)
	assert.Equal(t, "https://img.example.com/a.png", got.Messages[2].Metadata.ImageURL)

	rec = s.do(http.MethodGet, "/api/v1/conversations", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Conversation](t, rec), 1)

	rec = s.do(http.MethodDelete, "/api/v1/conversations/"+conv.ID, "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Conversation deleted successfully", decode(t, rec).Message)

	rec = s.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode(t, rec).Error)
}

func TestConversations_ScopedToOwner(t *testing.T) {
	s := newTestServer(t, nil)
	owner := s.login(t, "ada@example.com")
	other := s.login(t, "bob@example.com")

	rec := s.do(http.MethodPost, "/api/v1/conversations", `{"title":"Private"}`, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decodeData[domain.Conversation](t, rec)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/conversations/" + conv.ID, ""},
		{http.MethodPatch, "/api/v1/conversations/" + conv.ID, `{"title":"Mine now"}`},
		{http.MethodDelete, "/api/v1/conversations/" + conv.ID, ""},
		{http.MethodPost, "/api/v1/conversations/" + conv.ID + "/messages", `{"role":"user","content":"hi"}`},
	} {
		rec := s.do(tc.method, tc.path, tc.body, other)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec = s.do(http.MethodGet, "/api/v1/conversations", "", other)
	assert.Empty(t, decodeData[[]domain.Conversation](t, rec))
}

func TestConversations_InvalidMessages(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.login(t, "ada@example.com")
	rec := s.do(http.MethodPost, "/api/v1/conversations", `{}`, tok)
	conv := decodeData[domain.Conversation](t, rec)

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"role":"system","content":"hi"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error, "unsupported role")

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages/batch", `{"messages":[]}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/api/v1/conversations/"+conv.ID, `{"title":""}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", decode(t, rec).Error)
}
