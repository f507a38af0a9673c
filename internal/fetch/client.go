// Package fetch retrieves trail assets (KMZ archives, GPX tracks) either over
// HTTP or from a local directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxAssetSize is the largest response body Fetch accepts.
const MaxAssetSize = 64 << 20

var (
	// ErrInvalidPath is returned for asset paths that escape the asset root.
	ErrInvalidPath = errors.New("invalid asset path")
	// ErrTooLarge is returned for assets bigger than the client's size limit.
	ErrTooLarge = errors.New("asset too large")
)

// Source fetches an asset by its catalog-relative path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// EscapePath percent-encodes an asset path for use in a URL. Slashes are kept;
// spaces, non-ASCII characters and '#' are encoded.
func EscapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// Client fetches assets from a static file server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxSize    int64
}

// New creates a new asset client. A zero timeout means 30 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxSize:    MaxAssetSize,
	}
}

// URL returns the absolute URL of an asset path.
func (c *Client) URL(p string) string {
	return c.baseURL + "/" + EscapePath(strings.TrimLeft(p, "/"))
}

// Healthcheck checks if the asset server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ParseErrorResponse(resp)
	}
	return nil
}

// Fetch downloads an asset. Non-2xx responses are returned as *HTTPError and
// bodies over the size limit as ErrTooLarge, never truncated.
func (c *Client) Fetch(ctx context.Context, p string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(p), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ParseErrorResponse(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", p, ErrTooLarge, c.maxSize)
	}
	return body, nil
}

// DirSource reads assets from a directory on disk.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// Fetch reads the asset at root/p. Paths leaving the root are rejected.
func (s *DirSource) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(strings.TrimLeft(p, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}
