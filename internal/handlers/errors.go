package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/identity"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/services"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

// respondError maps service errors onto status codes. Unclassified errors are
// logged and hidden behind a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, identity.ErrNoIdentity):
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, services.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidData):
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrCredentialRejected):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "Provider rejected the linked credential, relink the account")
	case errors.Is(err, services.ErrRateLimited):
		return errorJSON(c, fiber.StatusTooManyRequests, "Provider rate limit exceeded, retry later")
	case errors.Is(err, services.ErrProviderUnavailable):
		return errorJSON(c, fiber.StatusServiceUnavailable, "Provider temporarily unavailable")
	case errors.Is(err, services.ErrProviderFailed):
		slog.Warn("provider request failed", "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusBadGateway, "Provider request failed")
	default:
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"error", err,
		)
		return errorJSON(c, fiber.StatusInternalServerError, "Internal server error")
	}
}

// parseBody decodes and validates a JSON body.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: invalid request body", services.ErrValidation)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", services.ErrValidation, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("%w: %s", services.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must not be empty"
	default:
		return field + " is invalid"
	}
}
