package services

import (
	"context"
)

// Turn roles in the assembled context window. Persisted system-role messages
// never appear here; the one system turn the model sees is the freshly read
// profile prompt.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// ContextTurn is one entry of the ordered context window sent to the model.
type ContextTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ModelParams carries the active profile's model parameters through to the
// gateway unchanged.
type ModelParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// CompletionGateway is the boundary to the generative model provider. The
// engine treats it as opaque: ordered context plus the new user text in,
// assistant text or an error out. Implementations own retries; the engine
// never retries.
type CompletionGateway interface {
	Complete(ctx context.Context, turns []ContextTurn, newUserText string, params ModelParams) (string, error)
}
