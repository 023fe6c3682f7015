package chat

import (
	"errors"

	"github.com/advisorop/advisorop-api/services"
	"github.com/advisorop/advisorop-api/utils/middleware"
	"github.com/advisorop/advisorop-api/utils/response"
	"github.com/advisorop/advisorop-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ChatHandler handles chat-related requests
type ChatHandler struct {
	db          *gorm.DB
	validator   *validation.Validator
	chatService *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db *gorm.DB, chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		db:          db,
		validator:   validation.NewValidator(),
		chatService: chatService,
	}
}

// SendMessageRequest represents the request to send a chat message
type SendMessageRequest struct {
	Message    string `json:"message" validate:"required,min=1,max=5000"`
	SessionKey string `json:"session_key" validate:"omitempty,max=40"`
}

// SendMessage handles POST /api/v1/chat
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// A missing key starts a fresh conversation
	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = services.NewSessionKey()
	}

	var ownerID *uint
	if user, ok := middleware.GetUser(c); ok && user != nil {
		ownerID = &user.ID
	}

	result, err := h.chatService.SendMessage(c.UserContext(), services.SendMessageRequest{
		SessionKey: sessionKey,
		Content:    req.Message,
		OwnerID:    ownerID,
	})
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.BadRequest(c, "Session is no longer active")
		}
		return response.InternalServerError(c, "Failed to process message")
	}

	if !result.Success {
		// The failure is already recorded in the conversation; surface
		// the same payload with a server error status.
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}

	return c.JSON(result)
}

// GetChatResponse is the payload for the conversation fetch endpoint
type GetChatResponse struct {
	History    []services.HistoryEntry `json:"history"`
	SessionKey string                  `json:"session_key"`
}

// GetChat handles GET /api/v1/chat. An unknown or absent session key
// yields an empty history and a freshly generated key.
func (h *ChatHandler) GetChat(c *fiber.Ctx) error {
	sessionKey := c.Query("session_key")

	if sessionKey != "" {
		history, err := h.chatService.History(sessionKey)
		if err == nil {
			return response.Success(c, GetChatResponse{
				History:    history,
				SessionKey: sessionKey,
			})
		}
		if !errors.Is(err, services.ErrSessionNotFound) {
			return response.InternalServerError(c, "Failed to fetch conversation")
		}
	}

	return response.Success(c, GetChatResponse{
		History:    []services.HistoryEntry{},
		SessionKey: services.NewSessionKey(),
	})
}
