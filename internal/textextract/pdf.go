package textextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

const pdfTimeout = 30 * time.Second

type pdfReader struct {
	parser *pdf.PDFParser
}

func newPDFReader(ctx context.Context) (*pdfReader, error) {
	// Whole document as a single text, not split per page.
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("create pdf parser: %w", err)
	}

	return &pdfReader{parser: p}, nil
}

func (r *pdfReader) text(ctx context.Context, data []byte, uri string) (text string, err error) {
	// The underlying reader panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parse pdf %s: %v", uri, p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	docs, err := r.parser.Parse(ctx, bytes.NewReader(data), einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("parse pdf %s: no documents", uri)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}

	return strings.Join(parts, "\n\n"), nil
}
