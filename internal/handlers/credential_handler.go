package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/identity"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/services"
)

type CredentialHandler struct {
	credentials *services.CredentialService
}

func NewCredentialHandler(credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

func (h *CredentialHandler) List(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	rows, err := h.credentials.List(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]dto.CredentialStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.NewCredentialStatus(r))
	}
	return c.JSON(out)
}

func (h *CredentialHandler) Save(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.SaveCredentialRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	row, err := h.credentials.Save(c.UserContext(), userID, services.CredentialInput{
		Service:   c.Params("service"),
		Type:      req.CredentialType,
		Data:      req.Data,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewCredentialStatus(*row))
}

func (h *CredentialHandler) Delete(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.credentials.Delete(c.UserContext(), userID, c.Params("service")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
