package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const (
	DefaultConversationTitle = "New Conversation"
	ConversationListLimit    = 50
)

// TurnInput is a client-supplied history entry.
type TurnInput struct {
	Role     domain.Role             `json:"role"`
	Content  string                  `json:"content"`
	Type     domain.MessageType      `json:"type"`
	Metadata *domain.MessageMetadata `json:"metadata,omitempty"`
}

type ConversationService struct {
	store        domain.ConversationStore
	defaultModel string
	now          func() time.Time
}

func NewConversationService(store domain.ConversationStore, policy *FallbackPolicy) *ConversationService {
	return &ConversationService{
		store:        store,
		defaultModel: policy.DefaultModel(domain.CapabilityText),
		now:          time.Now,
	}
}

func (s *ConversationService) Create(ctx context.Context, userID, title, model string) (domain.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultConversationTitle
	}
	if strings.TrimSpace(model) == "" {
		model = s.defaultModel
	}
	return s.store.CreateConversation(ctx, domain.Conversation{
		UserID: userID,
		Title:  title,
		Model:  model,
	})
}

// List returns the user's most recently updated conversations.
func (s *ConversationService) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.store.ListConversations(ctx, userID, ConversationListLimit)
}

func (s *ConversationService) Get(ctx context.Context, userID, id string) (domain.Conversation, error) {
	return s.store.GetConversation(ctx, userID, id)
}

func (s *ConversationService) Rename(ctx context.Context, userID, id, title string) (domain.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Conversation{}, fmt.Errorf("title is required: %w", domain.ErrInvalidInput)
	}
	return s.store.RenameConversation(ctx, userID, id, title)
}

func (s *ConversationService) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteConversation(ctx, userID, id)
}

func (s *ConversationService) AddMessage(ctx context.Context, userID, id string, in TurnInput) (domain.Message, error) {
	stored, err := s.AddMessages(ctx, userID, id, []TurnInput{in})
	if err != nil {
		return domain.Message{}, err
	}
	return stored[0], nil
}

// AddMessages appends the batch in order; nothing is stored if any entry is invalid.
func (s *ConversationService) AddMessages(ctx context.Context, userID, id string, in []TurnInput) ([]domain.Message, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("messages are required: %w", domain.ErrInvalidInput)
	}
	now := s.now()
	turns := make([]domain.Turn, 0, len(in))
	for i, t := range in {
		turn, err := toTurn(t, now)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		turns = append(turns, turn)
	}
	return s.store.AppendTurns(ctx, userID, id, turns)
}

func toTurn(in TurnInput, at time.Time) (domain.Turn, error) {
	switch in.Role {
	case domain.UserRole, domain.AssistantRole, domain.DeveloperRole:
	default:
		return domain.Turn{}, fmt.Errorf("unsupported role %q: %w", in.Role, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.Turn{}, fmt.Errorf("content is required: %w", domain.ErrInvalidInput)
	}
	typ := in.Type
	switch typ {
	case "":
		typ = domain.TextMessage
	case domain.TextMessage, domain.ImageMessage, domain.AudioMessage, domain.GeneratedImageMessage:
	default:
		return domain.Turn{}, fmt.Errorf("unsupported message type %q: %w", in.Type, domain.ErrInvalidInput)
	}
	return domain.Turn{Role: in.Role, Content: in.Content, Type: typ, Metadata: in.Metadata, Timestamp: at}, nil
}
