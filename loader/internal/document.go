package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"banyan/types"

	"gopkg.in/yaml.v3"
)

const sidecarSuffix = ".meta.yaml"

var ErrUnsupported = errors.New("unsupported file type")

// Document is a file read from the inbox, ready for ingestion.
type Document struct {
	Path         string
	Title        string
	Type         types.SourceType
	Authors      []string
	URL          *string
	PublishedAt  *time.Time
	VettingScore *float64
	Metadata     map[string]any
	Content      string
}

// Meta is the optional <file>.meta.yaml next to a source file.
type Meta struct {
	Title        string         `yaml:"title"`
	Type         string         `yaml:"type"`
	Authors      []string       `yaml:"authors"`
	URL          string         `yaml:"url"`
	PublishedAt  string         `yaml:"published_at"`
	VettingScore *float64       `yaml:"vetting_score"`
	Metadata     map[string]any `yaml:"metadata"`
}

func IsSidecar(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), sidecarSuffix)
}

func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + sidecarSuffix
}

func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// ReadDocument loads a .txt, .md or .pdf file and its sidecar metadata.
// The title comes from the sidecar, then the PDF info dictionary, then the
// file name.
func ReadDocument(path string) (*Document, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}

	doc := &Document{
		Path: path,
		Type: types.SourcePaper,
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := ReadPDF(path)
		if err != nil {
			return nil, err
		}
		doc.Content = text
		if info, err := ReadPDFInfo(path); err == nil {
			doc.Title = info.Title
			doc.Authors = info.Authors
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc.Content = string(data)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("empty document: %s", filepath.Base(path))
	}

	meta, err := ReadMeta(SidecarPath(path))
	if err != nil {
		return nil, err
	}
	if meta != nil {
		if err := doc.apply(meta); err != nil {
			return nil, err
		}
	}

	if doc.Title == "" {
		doc.Title = generateTitle(path)
	}
	return doc, nil
}

// ReadMeta returns nil without error when the sidecar does not exist.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", filepath.Base(path), err)
	}
	return &meta, nil
}

func (d *Document) apply(m *Meta) error {
	if m.Title != "" {
		d.Title = m.Title
	}
	if m.Type != "" {
		t, err := ParseSourceType(m.Type)
		if err != nil {
			return err
		}
		d.Type = t
	}
	if len(m.Authors) > 0 {
		d.Authors = m.Authors
	}
	if m.URL != "" {
		url := m.URL
		d.URL = &url
	}
	if m.PublishedAt != "" {
		t, err := ParseDate(m.PublishedAt)
		if err != nil {
			return err
		}
		d.PublishedAt = &t
	}
	if m.VettingScore != nil {
		d.VettingScore = m.VettingScore
	}
	if m.Metadata != nil {
		d.Metadata = m.Metadata
	}
	return nil
}

func ParseSourceType(s string) (types.SourceType, error) {
	switch t := types.SourceType(strings.ToLower(strings.TrimSpace(s))); t {
	case types.SourcePaper, types.SourceArticle, types.SourceBook, types.SourceReport, types.SourceThesis:
		return t, nil
	}
	return "", fmt.Errorf("unknown source type %q (supported: paper, article, book, report, thesis)", s)
}

// ParseDate accepts 2006, 2006-01-02 and RFC 3339.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func generateTitle(filePath string) string {
	fileName := filepath.Base(filePath)
	fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return fileName
}
