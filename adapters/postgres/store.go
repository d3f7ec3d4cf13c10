package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// Store implements domain.UserStore and domain.ConversationStore.
type Store struct {
	db  DBTX
	now func() time.Time
}

func NewStore(db DBTX) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const userColumns = `id::text, email, password_hash, name, avatar, provider, provider_id, is_email_verified, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var provider string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Avatar, &provider, &u.ProviderID, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.Provider = domain.AuthProvider(provider)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.Provider == "" {
		u.Provider = domain.LocalAuth
	}
	now := s.now()
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, avatar, provider, provider_id, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+userColumns,
		uuid.NewString(), u.Email, u.PasswordHash, u.Name, u.Avatar, string(u.Provider), u.ProviderID, u.IsEmailVerified, now)
	created, err := scanUser(row)
	if isUniqueViolation(err) {
		return domain.User{}, domain.ErrAlreadyExists
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("inserting user: %w", err)
	}
	return created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, domain.ErrNotFound
	}
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("selecting user by id: %w", err)
	}
	return u, err
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return domain.User{}, domain.ErrNotFound
	}
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, name = $4, avatar = $5, provider = $6,
		    provider_id = $7, is_email_verified = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Avatar, string(u.Provider), u.ProviderID, u.IsEmailVerified, s.now())
	updated, err := scanUser(row)
	if isUniqueViolation(err) {
		return domain.User{}, domain.ErrAlreadyExists
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("updating user: %w", err)
	}
	return updated, err
}

const conversationColumns = `id::text, user_id::text, title, model, created_at, updated_at`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return c, err
}

// validIDs reports whether both ids can be compared to UUID columns; anything
// else cannot name a stored row.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (s *Store) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if !validIDs(c.UserID) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	now := s.now()
	created, err := scanConversation(s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, title, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+conversationColumns,
		uuid.NewString(), c.UserID, c.Title, c.Model, now))
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	return created, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	if !validIDs(userID) {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetConversation(ctx context.Context, userID, id string) (domain.Conversation, error) {
	if !validIDs(userID, id) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	c, err := scanConversation(s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c, err
		}
		return domain.Conversation{}, fmt.Errorf("selecting conversation: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, conversation_id::text, role, content, type, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq`, id)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("selecting messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m        domain.Message
			role     string
			typ      string
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &typ, &metadata, &m.CreatedAt); err != nil {
			return domain.Conversation{}, fmt.Errorf("scanning message: %w", err)
		}
		m.Role, m.Type = domain.Role(role), domain.MessageType(typ)
		if len(metadata) > 0 {
			m.Metadata = &domain.MessageMetadata{}
			if err := json.Unmarshal(metadata, m.Metadata); err != nil {
				return domain.Conversation{}, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		c.Messages = append(c.Messages, m)
	}
	return c, rows.Err()
}

func (s *Store) RenameConversation(ctx context.Context, userID, id, title string) (domain.Conversation, error) {
	if !validIDs(userID, id) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	c, err := scanConversation(s.db.QueryRow(ctx, `
		UPDATE conversations SET title = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING `+conversationColumns, id, userID, title, s.now()))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Conversation{}, fmt.Errorf("renaming conversation: %w", err)
	}
	return c, err
}

func (s *Store) DeleteConversation(ctx context.Context, userID, id string) error {
	if !validIDs(userID, id) {
		return domain.ErrNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendTurns inserts the turns in order inside one transaction and bumps the
// conversation's updated_at.
func (s *Store) AppendTurns(ctx context.Context, userID, conversationID string, turns []domain.Turn) ([]domain.Message, error) {
	if !validIDs(userID, conversationID) {
		return nil, domain.ErrNotFound
	}
	stored := make([]domain.Message, 0, len(turns))
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE conversations SET updated_at = $3 WHERE id = $1 AND user_id = $2`,
			conversationID, userID, s.now())
		if err != nil {
			return fmt.Errorf("touching conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		for _, t := range turns {
			createdAt := t.Timestamp
			if createdAt.IsZero() {
				createdAt = s.now()
			}
			var metadata []byte
			if t.Metadata != nil {
				if metadata, err = json.Marshal(t.Metadata); err != nil {
					return fmt.Errorf("encoding message metadata: %w", err)
				}
			}
			m := domain.Message{
				ID:             uuid.NewString(),
				ConversationID: conversationID,
				Role:           t.Role,
				Content:        t.Content,
				Type:           t.Type,
				Metadata:       t.Metadata,
				CreatedAt:      createdAt,
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO messages (id, conversation_id, role, content, type, metadata, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				m.ID, conversationID, string(m.Role), m.Content, string(m.Type), metadata, m.CreatedAt)
			if err != nil {
				return fmt.Errorf("inserting message: %w", err)
			}
			stored = append(stored, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}
