package api

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"banyan/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SourceStore interface {
	ListSources(ctx context.Context) ([]store.SourceSummary, error)
	DeleteSource(ctx context.Context, id uuid.UUID) error
}

var uploadExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// SourceHandler manages the research corpus. Uploaded files are dropped in
// the loader's inbox and ingested by the watcher.
type SourceHandler struct {
	store     SourceStore
	uploadDir string
	logger    *slog.Logger
}

func NewSourceHandler(s SourceStore, uploadDir string, logger *slog.Logger) *SourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceHandler{
		store:     s,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

func (h *SourceHandler) HandleList(c *fiber.Ctx) error {
	sources, err := h.store.ListSources(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sources": sources})
}

func (h *SourceHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(map[string]string{"file": "is required"})
	}

	name := filepath.Base(file.Filename)
	lower := strings.ToLower(name)
	if !uploadExtensions[filepath.Ext(lower)] && !strings.HasSuffix(lower, ".meta.yaml") {
		return NewValidationError(map[string]string{"file": "must be a .pdf, .txt, .md or .meta.yaml file"})
	}

	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveFile(file, path); err != nil {
		return err
	}
	h.logger.Info("source uploaded", "path", path, "size", file.Size)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"result": "queued", "file": name})
}

func (h *SourceHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if err := h.store.DeleteSource(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "source")
		}
		return err
	}
	return c.JSON(fiber.Map{"deleted": id.String()})
}
