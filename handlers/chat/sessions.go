package chat

import (
	"errors"

	"github.com/advisorop/advisorop-api/services"
	"github.com/advisorop/advisorop-api/utils/middleware"
	"github.com/advisorop/advisorop-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// NewSessionRequest represents the request to start a fresh conversation
type NewSessionRequest struct {
	SessionKey string `json:"session_key" validate:"omitempty,max=40"`
}

// NewSession handles POST /api/v1/chat/new. The previous session, if any,
// is deactivated; clearing an unknown key is not an error.
func (h *ChatHandler) NewSession(c *fiber.Ctx) error {
	var req NewSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.SessionKey != "" {
		if err := h.chatService.Clear(req.SessionKey); err != nil && !errors.Is(err, services.ErrSessionNotFound) {
			return response.InternalServerError(c, "Failed to clear session")
		}
	}

	return response.Success(c, fiber.Map{
		"session_key": services.NewSessionKey(),
	})
}

// ListSessions handles GET /api/v1/chat/history
func (h *ChatHandler) ListSessions(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	includeArchived := c.QueryBool("include_archived", false)

	sessions, err := h.chatService.ListSessions(user.ID, includeArchived)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch sessions")
	}

	return response.Success(c, fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// ArchiveRequest represents an archive or unarchive action
type ArchiveRequest struct {
	Action string `json:"action" validate:"required,oneof=archive unarchive"`
}

// Archive handles POST /api/v1/chat/archive/:session_key
func (h *ChatHandler) Archive(c *fiber.Ctx) error {
	sessionKey := c.Params("session_key")
	if sessionKey == "" {
		return response.BadRequest(c, "Session key is required")
	}

	var req ArchiveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var ownerID *uint
	if user, ok := middleware.GetUser(c); ok && user != nil {
		ownerID = &user.ID
	}

	var err error
	if req.Action == "archive" {
		err = h.chatService.Archive(sessionKey, ownerID)
	} else {
		err = h.chatService.Unarchive(sessionKey, ownerID)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return response.NotFound(c, "Session not found")
		case errors.Is(err, services.ErrForbidden):
			return response.Forbidden(c, "You do not own this session")
		default:
			return response.InternalServerError(c, "Failed to update session")
		}
	}

	return response.SuccessWithMessage(c, "Session "+req.Action+"d", fiber.Map{
		"session_key": sessionKey,
		"archived":    req.Action == "archive",
	})
}

// Stats handles GET /api/v1/chat/stats/:session_key
func (h *ChatHandler) Stats(c *fiber.Ctx) error {
	sessionKey := c.Params("session_key")
	if sessionKey == "" {
		return response.BadRequest(c, "Session key is required")
	}

	stats, err := h.chatService.Stats(sessionKey)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to fetch session stats")
	}

	return response.Success(c, stats)
}
