package delivery

import (
	"time"

	"agentlink/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// handleSendMessage accepts a multipart form carrying exactly one of an
// `image` file field or a `message` text field, keyed by chat ID, and
// publishes the resulting chat message for fan-out.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	chatIDStr := c.Params("chat_id")
	chatID, err := uuid.Parse(chatIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid chat ID",
			"error":   err.Error(),
		})
	}

	text := c.FormValue("message")
	image, imageErr := c.FormFile("image")
	hasImage := imageErr == nil && image != nil

	if hasImage == (text != "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Exactly one of 'image' or 'message' is required",
		})
	}

	senderID := c.FormValue("sender_id")
	senderType := c.FormValue("sender_type")
	if senderType == "" {
		senderType = "customer"
	}

	msg := domain.ChatMessage{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   senderID,
		SenderType: senderType,
		CreatedAt:  time.Now(),
	}
	if hasImage {
		msg.MessageType = "image"
		msg.Attachments = []string{image.Filename}
	} else {
		msg.MessageType = "text"
		msg.Message = text
	}

	if err := s.producer.SendMessage(c.Context(), msg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to publish message",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message accepted",
		"data": domain.SendMessageResponse{
			MessageID: msg.ID.String(),
			Timestamp: msg.CreatedAt.Format(time.RFC3339),
			Status:    "sent",
		},
	})
}

func (s *Server) handleGetOnlineAgents(c *fiber.Ctx) error {
	agents, err := s.hub.store.GetOnlineAgents(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get online agents",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Online agents retrieved successfully",
		"data":    agents,
	})
}
