package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckHandler struct {
	db Pinger
}

func NewCheckHandler(db Pinger) *CheckHandler {
	return &CheckHandler{db: db}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleReady reports whether the corpus database is reachable.
func (h *CheckHandler) HandleReady(c *fiber.Ctx) error {
	if h.db == nil {
		return c.JSON(fiber.Map{"result": "ok"})
	}
	if err := h.db.Ping(c.UserContext()); err != nil {
		return NewError(fiber.StatusServiceUnavailable, "database unavailable: "+err.Error())
	}
	return c.JSON(fiber.Map{"result": "ok"})
}
