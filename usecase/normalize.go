package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// Normalize converts client input plus optional instructions into a provider
// payload. It has no side effects.
func Normalize(input domain.Input, instructions string) (domain.Payload, error) {
	var messages []domain.ChatMessage
	if strings.TrimSpace(instructions) != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.SystemRole, Content: instructions})
	}

	if !input.IsSequence {
		if strings.TrimSpace(input.Text) == "" {
			return domain.Payload{}, invalidInput("input is required")
		}
		messages = append(messages, domain.ChatMessage{Role: domain.UserRole, Content: input.Text})
		return domain.Payload{Messages: messages}, nil
	}

	if len(input.Turns) == 0 {
		return domain.Payload{}, invalidInput("input must contain at least one turn")
	}
	for i, turn := range input.Turns {
		role, ok := providerRole(turn.Role)
		if !ok {
			return domain.Payload{}, invalidInput(fmt.Sprintf("input[%d]: unsupported role %q", i, turn.Role))
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: contentText(turn.Content)})
	}
	return domain.Payload{Messages: messages}, nil
}

func providerRole(role domain.Role) (domain.Role, bool) {
	switch role {
	case domain.UserRole, domain.AssistantRole:
		return role, true
	case domain.SystemRole, domain.DeveloperRole:
		return domain.SystemRole, true
	default:
		return "", false
	}
}

// contentText returns string content as-is and anything else as compact JSON.
func contentText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
