package api

import (
	"banyan/app/qa"
	"banyan/types"

	"github.com/gofiber/fiber/v2"
)

type ClaimsHandler struct {
	validator *qa.Validator
}

func NewClaimsHandler(validator *qa.Validator) *ClaimsHandler {
	return &ClaimsHandler{validator: validator}
}

// HandleRunClaims serves POST /api/qa/run-claims. The whole request is
// validated before any claim is checked.
func (h *ClaimsHandler) HandleRunClaims(c *fiber.Ctx) error {
	var params types.RunClaimsParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	checks := h.validator.Run(c.UserContext(), params.Claims, params.Options())
	return c.JSON(fiber.Map{"checks": checks})
}

// HandleFrameworkClaims extracts claims from a Vision Framework and checks
// them in one call.
func (h *ClaimsHandler) HandleFrameworkClaims(c *fiber.Ctx) error {
	var params types.FrameworkClaimsParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	claims := qa.ExtractClaims(params.Framework)
	checks := h.validator.Run(c.UserContext(), claims, params.Options())
	return c.JSON(fiber.Map{
		"claims": claims,
		"checks": checks,
	})
}
