package textextract

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	acceptEncoding = "gzip"
	// Resumes larger than this are truncated.
	maxBodyBytes = 20 << 20
)

type fetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

func newFetcher(userAgent string, timeout time.Duration, log *zap.Logger) *fetcher {
	return &fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    log,
	}
}

// get downloads url and returns the body and its content type.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)

	f.logger.Debug("fetch resume", zap.String("url", url))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: bad status: %s", url, resp.Status)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", url, err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
