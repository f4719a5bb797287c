// Package convert turns dropped documents into per-page plain text
// for the extraction pipeline.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrUnsupported is returned for document formats the converter does
// not understand. Callers record the document as skipped rather than
// failing the batch.
var ErrUnsupported = errors.New("unsupported document format")

// Config bounds conversion work per document.
type Config struct {
	// MaxPages limits how many PDF pages are read.
	MaxPages int `koanf:"max_pages"`

	// MaxTextBytes caps the extracted text per document.
	MaxTextBytes int `koanf:"max_text_bytes"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxPages:     200,
		MaxTextBytes: 4 * 1024 * 1024,
	}
}

// Page is one page of extracted text. Plain-text inputs yield a single
// page numbered 1.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the converted form of one input file.
type Document struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Pages  []Page `json:"pages"`
}

// Text joins all pages into one string for chunking.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Converter extracts text from supported document formats.
type Converter struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a converter.
func New(cfg Config, logger *zap.Logger) *Converter {
	def := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = def.MaxTextBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{cfg: cfg, logger: logger.Named("convert")}
}

// Convert reads and extracts one document. Unknown extensions return
// ErrUnsupported; a damaged file returns a descriptive error. Either
// way the failure stays scoped to this document.
func (c *Converter) Convert(path string) (*Document, error) {
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := c.pdfPages(path)
		if err != nil {
			return nil, err
		}
		return &Document{Name: name, Format: "pdf", Pages: pages}, nil

	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(data) > c.cfg.MaxTextBytes {
			data = data[:c.cfg.MaxTextBytes]
		}
		text := cleanText(string(data))
		return &Document{
			Name:   name,
			Format: "text",
			Pages:  []Page{{Number: 1, Text: text}},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
}

// pdfPages extracts text page by page. Pages that fail extraction are
// skipped with a warning so one bad page cannot sink the document.
func (c *Converter) pdfPages(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf %s has no pages", filepath.Base(path))
	}
	if total > c.cfg.MaxPages {
		c.logger.Warn("pdf truncated to page limit",
			zap.String("file", filepath.Base(path)),
			zap.Int("pages", total),
			zap.Int("limit", c.cfg.MaxPages),
		)
		total = c.cfg.MaxPages
	}

	var pages []Page
	size := 0
	for n := 1; n <= total; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			c.logger.Warn("page extraction failed",
				zap.String("file", filepath.Base(path)),
				zap.Int("page", n),
				zap.Error(err),
			)
			continue
		}

		cleaned := cleanText(text)
		if cleaned == "" {
			continue
		}

		size += len(cleaned)
		pages = append(pages, Page{Number: n, Text: cleaned})
		if size > c.cfg.MaxTextBytes {
			break
		}
	}

	return pages, nil
}

// cleanText strips null bytes and collapses runs of spaces while
// keeping newlines.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")

	var b strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) && r != '\n' {
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}
