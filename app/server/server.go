package server

import (
	"context"
	"log/slog"

	"banyan/app/api"
	"banyan/app/middleware"
	"banyan/app/qa"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Store is what the HTTP layer needs from the corpus database.
type Store interface {
	api.Pinger
	api.SourceStore
}

type Deps struct {
	// Finder serves /api/references. It must search the local corpus, the
	// Validator may go through a remote instance.
	Finder    qa.ReferenceFinder
	Validator *qa.Validator
	Store     Store
	UploadDir string
	BodyLimit int
	Logger    *slog.Logger
}

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *slog.Logger
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	}
	if deps.BodyLimit > 0 {
		cfg.BodyLimit = deps.BodyLimit
	}

	var (
		app              = fiber.New(cfg)
		checkHandler     = api.NewCheckHandler(deps.Store)
		referenceHandler = api.NewReferenceHandler(deps.Finder)
		claimsHandler    = api.NewClaimsHandler(deps.Validator)
		sourceHandler    = api.NewSourceHandler(deps.Store, deps.UploadDir, logger)
	)

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(logger))

	var (
		check   = app.Group("/check")
		apiRefs = app.Group("/api")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/ready", checkHandler.HandleReady)

	apiRefs.Post("/references", referenceHandler.HandleReferences)
	apiRefs.Post("/qa/run-claims", claimsHandler.HandleRunClaims)
	apiRefs.Post("/qa/framework-claims", claimsHandler.HandleFrameworkClaims)

	apiRefs.Get("/sources", sourceHandler.HandleList)
	apiRefs.Post("/sources", sourceHandler.HandleUpload)
	apiRefs.Delete("/sources/:id", sourceHandler.HandleDelete)

	return &Server{
		listenAddr: addr,
		app:        app,
		logger:     logger,
	}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	if err := s.app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.logger.Info("server stopped")
	return err
}
