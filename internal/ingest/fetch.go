package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kalambet/ragdesk/internal/errs"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxFetchSize = 10 << 20
)

// Fetcher downloads documents over HTTP and extracts their text.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher returns a Fetcher. A nil client selects one with a 30s timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{client: client, maxSize: defaultMaxFetchSize}
}

// Fetch downloads rawURL and returns its extracted texts. HTML bodies are
// reduced to visible text; PDF and DOCX bodies go through Extract; anything
// else is read as plain text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.InvalidInput("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.Upstream("fetching "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Upstream("fetching "+rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, errs.Upstream("reading "+rawURL, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, errs.InvalidInput("%s exceeds %d bytes", rawURL, f.maxSize)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return Extract("page.html", data)
	case mediaType == "application/pdf":
		return Extract("document.pdf", data)
	case strings.Contains(mediaType, "wordprocessingml"):
		return Extract("document.docx", data)
	}

	if ext := strings.ToLower(path.Ext(u.Path)); ext == ".pdf" || ext == ".docx" || ext == ".html" || ext == ".htm" {
		return Extract(u.Path, data)
	}
	return Extract("body.txt", data)
}
