// Package textextract turns resume documents (plain text, PDF, DOCX, local
// files and URLs) into plain text. Extraction is best effort: failures are
// logged and produce an empty string.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/logger"
	"github.com/spigell/resume-scorer/internal/util"
)

const (
	defaultUserAgent = "spigell/resume-scorer"
	defaultTimeout   = 20 * time.Second
)

// ErrUnsupported is reported for documents that no reader handles.
var ErrUnsupported = errors.New("unsupported document")

type kind int

const (
	kindText kind = iota
	kindPDF
	kindDOCX
)

// Source describes one document. The first non-empty of Data, Path and URL is used.
type Source struct {
	Path string
	URL  string
	Data []byte
	// ContentType hints the format of Data.
	ContentType string
}

func (s Source) uri() string {
	switch {
	case s.Path != "":
		return s.Path
	case s.URL != "":
		return s.URL
	default:
		return "inline"
	}
}

// Config tunes the extractor.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Extractor produces plain text from resume documents.
type Extractor struct {
	pdf     *pdfReader
	fetcher *fetcher
	logger  *zap.Logger
}

// New builds an Extractor. A PDF parser that cannot be initialised is an error.
func New(ctx context.Context, cfg *Config, log *zap.Logger) (*Extractor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log = logger.OrNop(log)

	pdf, err := newPDFReader(ctx)
	if err != nil {
		return nil, err
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Extractor{
		pdf:     pdf,
		fetcher: newFetcher(ua, timeout, log),
		logger:  log,
	}, nil
}

// Extract returns the text of the document, or "" when nothing could be read.
func (e *Extractor) Extract(ctx context.Context, src Source) string {
	text, err := e.extract(ctx, src)
	if err != nil {
		e.logger.Warn("text extraction failed", zap.String("source", src.uri()), zap.Error(err))
		return ""
	}

	e.logger.Debug("text extracted", zap.String("source", src.uri()), zap.Int("chars", len(text)))
	return text
}

func (e *Extractor) extract(ctx context.Context, src Source) (string, error) {
	switch {
	case len(src.Data) > 0:
		return e.decode(ctx, src.Data, detect(src.uri(), src.ContentType), src.uri())
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", src.Path, err)
		}
		return e.decode(ctx, data, detect(src.Path, src.ContentType), src.Path)
	case src.URL != "":
		data, contentType, err := e.fetcher.get(ctx, src.URL)
		if err != nil {
			return "", err
		}
		return e.decode(ctx, data, detect(src.URL, util.FirstNonEmpty(src.ContentType, contentType)), src.URL)
	default:
		return "", fmt.Errorf("%w: empty source", ErrUnsupported)
	}
}

func (e *Extractor) decode(ctx context.Context, data []byte, k kind, uri string) (string, error) {
	switch k {
	case kindPDF:
		return e.pdf.text(ctx, data, uri)
	case kindDOCX:
		return docxText(data)
	default:
		return string(data), nil
	}
}

// detect picks a reader from the content type first, then the file extension.
func detect(name, contentType string) kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return kindPDF
	case strings.Contains(ct, "word"):
		return kindDOCX
	}

	u := strings.ToLower(name)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch filepath.Ext(u) {
	case ".pdf":
		return kindPDF
	case ".docx":
		return kindDOCX
	}

	return kindText
}
