package app

import (
	"strconv"
	"time"

	attachmentapp "family_chat_service/internal/attachment/app"
	"family_chat_service/internal/attachment/domain"
	"family_chat_service/pkg/logger"
	"family_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// presignExpiry bounds how long a handed-out blob link stays valid.
const presignExpiry = 15 * time.Minute

// ChatRestHandler serves the non-realtime surface: history replay and the
// attachment pipeline.
type ChatRestHandler struct {
	messageUC *SendMessageUseCase
	pipeline  attachmentapp.PipelineUseCase
}

// NewChatRestHandler create ChatRestHandler
func NewChatRestHandler(messageUC *SendMessageUseCase, pipeline attachmentapp.PipelineUseCase) *ChatRestHandler {
	return &ChatRestHandler{
		messageUC: messageUC,
		pipeline:  pipeline,
	}
}

// GetMessages replay recent room history
// @Summary replay recent room history
// @Description returns up to 100 most recent messages of a room, ascending by time
// @Tags Chat
// @Produce json
// @Param room query string true "room name"
// @Param limit query int false "max messages, capped at 100"
// @Success 200 {object} map[string]interface{} "messages"
// @Failure 400 {object} string "missing room"
// @Failure 500 {object} string "history unavailable"
// @Router /chat/messages [get]
func (h *ChatRestHandler) GetMessages(c *fiber.Ctx) error {
	room := c.Query("room")
	if room == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room is required"})
	}

	limit, _ := strconv.ParseInt(c.Query("limit", "100"), 10, 64)
	family, _ := c.Locals(middlewares.TokenFamily).(string)

	msgs, err := h.messageUC.Recent(c.Context(), roomKey(family, room), limit)
	if err != nil {
		logger.Log.Errorf("history replay failed:", err, zap.String("room", room))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history unavailable"})
	}
	return c.JSON(fiber.Map{"room": room, "messages": msgs})
}

// Upload store an attachment blob
// @Summary store an attachment blob
// @Description accepts a multipart file, stores the blob and registers its descriptor
// @Tags Chat
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "attachment"
// @Success 200 {object} map[string]interface{} "descriptor"
// @Failure 400 {object} string "missing file"
// @Failure 500 {object} string "store failed"
// @Router /chat/upload [post]
func (h *ChatRestHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file"})
	}
	defer f.Close()

	att, err := h.pipeline.Upload(c.Context(), domain.UploadReq{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		File:     f,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"file_attachment": att})
}

// PresignedURL short-lived direct download link
// @Summary short-lived direct download link
// @Description resolves a stored file_ref to a presigned blob URL
// @Tags Chat
// @Produce json
// @Param ref query string true "file_ref of a stored attachment"
// @Success 200 {object} map[string]interface{} "url"
// @Failure 400 {object} string "missing ref"
// @Failure 404 {object} string "unknown attachment"
// @Router /chat/files/url [get]
func (h *ChatRestHandler) PresignedURL(c *fiber.Ctx) error {
	ref := c.Query("ref")
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ref is required"})
	}

	url, err := h.pipeline.PresignURL(c.Context(), ref, presignExpiry)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown attachment"})
	}
	return c.JSON(fiber.Map{"url": url, "expires_in_seconds": int(presignExpiry.Seconds())})
}
