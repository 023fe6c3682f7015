package services

import (
	"github.com/advisorop/advisorop-api/model"
)

// BuildHistory assembles the ordered context window for a model call. The
// window always opens with a synthetic user turn carrying the system prompt
// and a synthetic assistant turn carrying the greeting, followed by the
// stored conversation in timestamp order.
//
// Stored system-role messages are deliberately excluded: they exist for
// audit and bookkeeping only, and the model must never see them as turns.
// No truncation is applied; the full history is sent every call.
func BuildHistory(systemPrompt, greeting string, messages []model.ChatMessage) []ContextTurn {
	history := make([]ContextTurn, 0, len(messages)+2)

	history = append(history,
		ContextTurn{Role: TurnRoleUser, Text: systemPrompt},
		ContextTurn{Role: TurnRoleAssistant, Text: greeting},
	)

	for _, msg := range messages {
		switch msg.Role {
		case model.MessageRoleUser:
			history = append(history, ContextTurn{Role: TurnRoleUser, Text: msg.Content})
		case model.MessageRoleAssistant:
			history = append(history, ContextTurn{Role: TurnRoleAssistant, Text: msg.Content})
		}
	}

	return history
}
