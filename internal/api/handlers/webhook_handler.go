package handlers

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"
)

// UpdateProcessor feeds a raw Telegram update through the bot's handlers.
// Implemented by the telegram source.
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

type WebhookHandler struct {
	processor UpdateProcessor
	secret    string
}

func NewWebhookHandler(processor UpdateProcessor, secret string) *WebhookHandler {
	return &WebhookHandler{processor: processor, secret: secret}
}

// HandleUpdate accepts a Telegram webhook delivery. The path secret gates the
// endpoint; bad payloads still return 200 so Telegram does not redeliver
// them forever.
func (h *WebhookHandler) HandleUpdate(c *fiber.Ctx) error {
	if subtle.ConstantTimeCompare([]byte(c.Params("secret")), []byte(h.secret)) != 1 {
		return c.SendStatus(fiber.StatusNotFound)
	}

	var update tele.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		log.Warn().Err(err).Msg("malformed telegram webhook payload")
		return c.SendStatus(fiber.StatusOK)
	}

	h.processor.ProcessUpdate(update)
	return c.SendStatus(fiber.StatusOK)
}
