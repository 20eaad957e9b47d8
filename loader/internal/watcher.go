package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type FileState int

const (
	FileDone FileState = iota
	FileBad
)

type WatcherConfig struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	MonitoringTime time.Duration // how long a file must sit unchanged before it is picked up
	PollInterval   time.Duration
}

// Watcher polls the inbox and hands over files that have settled.
type Watcher struct {
	cfg    WatcherConfig
	logger *slog.Logger

	fileMutex       sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewWatcher(cfg WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:             cfg,
		logger:          logger,
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}, nil
}

func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) {
	w.logger.Info("start monitoring folder", "dir", w.cfg.SourceDir)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	defer w.logger.Info("file watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			files, err := os.ReadDir(w.cfg.SourceDir)
			if err != nil {
				w.logger.Error("error while reading source directory", "error", err)
				continue
			}

			currentFiles := make(map[string]bool)
			for _, file := range files {
				if file.IsDir() || strings.HasPrefix(file.Name(), ".") || IsSidecar(file.Name()) {
					continue
				}

				filePath := filepath.Join(w.cfg.SourceDir, file.Name())
				currentFiles[filePath] = true

				if !w.ready(filePath) {
					continue
				}

				select {
				case fileChan <- filePath:
				case <-ctx.Done():
					return
				}
			}

			w.forgetMissing(currentFiles)
		}
	}
}

// ready reports whether filePath has been seen for at least MonitoringTime
// and marks it as processing when it has.
func (w *Watcher) ready(filePath string) bool {
	w.fileMutex.Lock()
	defer w.fileMutex.Unlock()

	if w.filesProcessing[filePath] {
		return false
	}

	firstSeen, exists := w.fileFirstSeen[filePath]
	if !exists {
		w.fileFirstSeen[filePath] = time.Now()
		w.logger.Info("new file detected", "path", filePath)
		return false
	}
	if time.Since(firstSeen) < w.cfg.MonitoringTime {
		return false
	}

	w.filesProcessing[filePath] = true
	return true
}

func (w *Watcher) forgetMissing(currentFiles map[string]bool) {
	w.fileMutex.Lock()
	defer w.fileMutex.Unlock()

	for filePath := range w.fileFirstSeen {
		if !currentFiles[filePath] && !w.filesProcessing[filePath] {
			delete(w.fileFirstSeen, filePath)
		}
	}
}

// ProcessFile reads every file from fileChan into a Document. Unreadable
// files go straight to the bad directory.
func (w *Watcher) ProcessFile(ctx context.Context, fileChan <-chan string, docChan chan<- *Document) {
	defer w.logger.Info("file processor stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}

			w.logger.Info("processing file", "path", filePath)
			doc, err := ReadDocument(filePath)
			if err != nil {
				w.logger.Error("failed to read document", "path", filePath, "error", err)
				w.Done(filePath, FileBad)
				continue
			}

			select {
			case docChan <- doc:
			case <-ctx.Done():
				w.release(filePath)
				return
			}
		}
	}
}

// Done moves a processed file (and its sidecar) out of the inbox and stops
// tracking it.
func (w *Watcher) Done(filePath string, state FileState) {
	if err := w.MoveToArchive(filePath, state); err != nil {
		w.logger.Error("failed to move file", "path", filePath, "error", err)
	}
	if sidecar := SidecarPath(filePath); fileExists(sidecar) {
		if err := w.MoveToArchive(sidecar, state); err != nil {
			w.logger.Error("failed to move metadata", "path", sidecar, "error", err)
		}
	}
	w.release(filePath)
}

func (w *Watcher) release(filePath string) {
	w.fileMutex.Lock()
	delete(w.filesProcessing, filePath)
	delete(w.fileFirstSeen, filePath)
	w.fileMutex.Unlock()
}

// MoveToArchive moves filePath into a dated folder under the archive or bad
// directory, renaming on conflict.
func (w *Watcher) MoveToArchive(filePath string, state FileState) error {
	root := w.cfg.ArchiveDir
	if state == FileBad {
		root = w.cfg.BadDir
	}

	destDir := filepath.Join(root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	for counter := 1; fileExists(destPath); counter++ {
		name := filepath.Base(filePath)
		ext := filepath.Ext(name)
		if IsSidecar(name) {
			ext = sidecarSuffix
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), counter, ext))
	}

	if err := os.Rename(filePath, destPath); err == nil {
		w.logger.Info("file moved", "from", filePath, "to", destPath)
		return nil
	}

	// rename fails across devices, fall back to copy and remove
	if err := copyFile(filePath, destPath); err != nil {
		return fmt.Errorf("error moving file: %w", err)
	}
	w.logger.Info("file moved", "from", filePath, "to", destPath)
	return os.Remove(filePath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
