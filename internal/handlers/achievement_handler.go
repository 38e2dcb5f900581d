package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/identity"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/services"
)

type AchievementHandler struct {
	achievements *services.AchievementService
}

func NewAchievementHandler(achievements *services.AchievementService) *AchievementHandler {
	return &AchievementHandler{achievements: achievements}
}

func (h *AchievementHandler) List(c *fiber.Ctx) error {
	userID, gameID, err := userAndGame(c)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.achievements.GetAchievements(c.UserContext(), userID, gameID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AchievementHandler) Sync(c *fiber.Ctx) error {
	userID, gameID, err := userAndGame(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.SyncRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	resp, err := h.achievements.SyncAchievements(c.UserContext(), userID, gameID, req.Source)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AchievementHandler) Progress(c *fiber.Ctx) error {
	userID, gameID, err := userAndGame(c)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.achievements.GetProgress(c.UserContext(), userID, gameID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func userAndGame(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userID, err := identity.UserID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	gameID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: invalid game id", services.ErrValidation)
	}
	return userID, gameID, nil
}
