// Package memstore keeps users and conversations in process memory. It backs
// the server when no database is configured and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	emails        map[string]string
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
	now           func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[string]domain.User),
		emails:        make(map[string]string),
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[u.Email]; exists {
		return domain.User{}, domain.ErrAlreadyExists
	}
	now := s.now()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[u.ID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if prev.Email != u.Email {
		if _, taken := s.emails[u.Email]; taken {
			return domain.User{}, domain.ErrAlreadyExists
		}
		delete(s.emails, prev.Email)
		s.emails[u.Email] = u.ID
	}
	u.CreatedAt = prev.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) CreateConversation(_ context.Context, c domain.Conversation) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c.ID = uuid.NewString()
	c.Messages = nil
	c.CreatedAt, c.UpdatedAt = now, now
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) ListConversations(_ context.Context, userID string, limit int) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Conversation{}
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetConversation(_ context.Context, userID, id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.owned(userID, id)
	if !ok {
		return domain.Conversation{}, domain.ErrNotFound
	}
	c.Messages = append([]domain.Message{}, s.messages[id]...)
	return c, nil
}

func (s *Store) RenameConversation(_ context.Context, userID, id, title string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.owned(userID, id)
	if !ok {
		return domain.Conversation{}, domain.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = s.now()
	s.conversations[id] = c
	return c, nil
}

func (s *Store) DeleteConversation(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(userID, id); !ok {
		return domain.ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) AppendTurns(_ context.Context, userID, conversationID string, turns []domain.Turn) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.owned(userID, conversationID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	stored := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		createdAt := t.Timestamp
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		stored = append(stored, domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           t.Role,
			Content:        t.Content,
			Type:           t.Type,
			Metadata:       t.Metadata,
			CreatedAt:      createdAt,
		})
	}
	s.messages[conversationID] = append(s.messages[conversationID], stored...)
	c.UpdatedAt = s.now()
	s.conversations[conversationID] = c
	return stored, nil
}

// owned must be called with s.mu held.
func (s *Store) owned(userID, id string) (domain.Conversation, bool) {
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return domain.Conversation{}, false
	}
	return c, true
}
