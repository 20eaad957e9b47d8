package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"banyan/loader/internal"
)

type Config struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	MonitoringTime time.Duration
	PollInterval   time.Duration
}

// Service watches the inbox directory and ingests every file that settles
// there.
type Service struct {
	logger   *slog.Logger
	ingester *Ingester
	watcher  *internal.Watcher
}

func New(ingester *Ingester, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := internal.NewWatcher(internal.WatcherConfig{
		SourceDir:      cfg.SourceDir,
		ArchiveDir:     cfg.ArchiveDir,
		BadDir:         cfg.BadDir,
		MonitoringTime: cfg.MonitoringTime,
		PollInterval:   cfg.PollInterval,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		logger:   logger,
		ingester: ingester,
		watcher:  watcher,
	}, nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	fileChan := make(chan string, 10)
	docChan := make(chan *internal.Document)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.watcher.ProcessFile(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.DocumentSave(ctx, docChan)
	}()

	<-ctx.Done()
	s.logger.Info("received shutdown signal, shutting down gracefully")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all goroutines stopped successfully")
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for goroutines to stop, forcing shutdown")
	}

	s.logger.Info("loader service stopped")
}

// DocumentSave ingests documents until docChan is closed. Successful files
// are archived, failed ones moved to the bad directory.
func (s *Service) DocumentSave(ctx context.Context, docChan <-chan *internal.Document) {
	for doc := range docChan {
		res, err := s.ingester.IngestSource(ctx, inputFromDocument(doc))
		if err != nil {
			if ctx.Err() != nil {
				// leave the file in the inbox for the next run
				s.logger.Warn("ingestion interrupted", "path", doc.Path)
				return
			}
			s.logger.Error("failed to ingest document", "path", doc.Path, "error", err)
			s.watcher.Done(doc.Path, internal.FileBad)
			continue
		}

		s.logger.Info("document saved", "path", doc.Path, "source_id", res.SourceID, "chunks", res.ChunksCreated, "duplicate", res.Duplicate)
		s.watcher.Done(doc.Path, internal.FileDone)
	}
}
