package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	config "github.com/anterny/tokrelay/configs"
	"github.com/anterny/tokrelay/internal/service"
)

type AuthHandler struct {
	s   service.AccountService
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config, service service.AccountService) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg}
}

// StartAuth redirects the operator to TikTok's consent page. The account
// label and posting mode ride through the redirect in a signed state token.
func (h *AuthHandler) StartAuth(c *fiber.Ctx) error {
	label := c.Query("account_label")
	mode := c.Query("mode", h.cfg.PostingMode)

	authURL, err := h.s.BuildAuthorizationURL(label, mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	acc, err := h.s.HandleCallback(c.Context(), code, state)
	if err != nil {
		log.Error().Err(err).Msg("tiktok authorization callback failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "authorization failed",
		})
	}

	return c.JSON(fiber.Map{
		"account":      acc.AccountLabel,
		"open_id":      acc.OpenID,
		"posting_mode": acc.PostingMode,
		"scopes":       acc.GrantedScopes,
	})
}

// ListAccounts returns the registered accounts without credentials.
func (h *AuthHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}
	return c.JSON(fiber.Map{
		"accounts": accounts,
	})
}
