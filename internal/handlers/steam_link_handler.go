package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/identity"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/services"
)

type SteamLinkHandler struct {
	link *services.SteamLinkService
}

func NewSteamLinkHandler(link *services.SteamLinkService) *SteamLinkHandler {
	return &SteamLinkHandler{link: link}
}

// LoginURL returns the provider redirect. The realm comes from the Origin
// header, or the request's own base URL when absent.
func (h *SteamLinkHandler) LoginURL(c *fiber.Ctx) error {
	if _, err := identity.UserID(c); err != nil {
		return respondError(c, err)
	}
	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = c.BaseURL()
	}
	u, err := h.link.LoginURL(origin, c.Query("callback_url"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SteamLoginURLResponse{URL: u})
}

func (h *SteamLinkHandler) Verify(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.SteamVerifyRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	resp, err := h.link.Link(c.UserContext(), userID, req.Params)
	if err != nil {
		return respondError(c, err)
	}
	if !resp.Linked {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	}
	return c.JSON(resp)
}

func (h *SteamLinkHandler) Unlink(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.link.Unlink(c.UserContext(), userID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
