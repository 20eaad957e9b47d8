package api

import (
	"banyan/app/qa"
	"banyan/types"

	"github.com/gofiber/fiber/v2"
)

type ReferenceHandler struct {
	finder qa.ReferenceFinder
}

func NewReferenceHandler(finder qa.ReferenceFinder) *ReferenceHandler {
	return &ReferenceHandler{finder: finder}
}

// HandleReferences serves POST /api/references.
func (h *ReferenceHandler) HandleReferences(c *fiber.Ctx) error {
	var params types.ReferenceParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	refs, err := h.finder.FindReferences(c.UserContext(), params.ClaimText, params.Options())
	if err != nil {
		return err
	}
	if refs == nil {
		refs = []types.ReferencePassage{}
	}

	return c.JSON(fiber.Map{"references": refs})
}
