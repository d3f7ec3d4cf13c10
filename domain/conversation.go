package domain

import (
	"context"
	"time"
)

type MessageType string

const (
	TextMessage           MessageType = "text"
	ImageMessage          MessageType = "image"
	AudioMessage          MessageType = "audio"
	GeneratedImageMessage MessageType = "generated-image"
)

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MessageMetadata struct {
	ImageURL string `json:"imageUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	FileID   string `json:"fileId,omitempty"`
}

type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Type           MessageType      `json:"type"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Turn is one entry appended to a conversation's history.
type Turn struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Type      MessageType      `json:"type"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TurnRecord is a batch of turns for one conversation owned by one user.
type TurnRecord struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Turns          []Turn `json:"turns"`
}

// TurnRecorder is the append-only persistence gateway the orchestrator calls
// after a successful generation.
type TurnRecorder interface {
	RecordTurns(ctx context.Context, record TurnRecord) error
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, c Conversation) (Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (Conversation, error)
	RenameConversation(ctx context.Context, userID, id, title string) (Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
	// AppendTurns appends in order and returns the stored messages.
	AppendTurns(ctx context.Context, userID, conversationID string, turns []Turn) ([]Message, error)
}
