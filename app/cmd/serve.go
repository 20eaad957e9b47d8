package main

import (
	"context"
	"time"

	"banyan/app/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}

		s := server.NewServer(cfg.Server.Addr, server.Deps{
			Finder:    rt.retriever,
			Validator: rt.validator(),
			Store:     rt.store,
			UploadDir: cfg.Loader.SourceDir,
			BodyLimit: cfg.Server.BodyLimit,
			Logger:    log,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- s.Run() }()

		select {
		case err = <-errCh:
		case <-ctx.Done():
			log.Info("received shutdown signal, shutting down server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := s.Shutdown(shutdownCtx); serr != nil && err == nil {
			err = serr
		}
		if cerr := rt.Close(shutdownCtx); cerr != nil && err == nil {
			err = cerr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
