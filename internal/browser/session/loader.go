// File: internal/browser/session/loader.go
package session

import (
	"bytes"
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

// ErrRouteNotFound is returned by loaders that have no view for a route.
var ErrRouteNotFound = errors.New("session: route not found")

// maxDocumentSize bounds how much markup a single view may contribute.
const maxDocumentSize = 10 << 20

// Loader produces the markup of the view mounted at a route.
type Loader interface {
	Load(ctx context.Context, route string) (io.Reader, error)
}

// StaticLoader serves views from an in-memory route to markup table. Lookups
// try the full route first and then its path without query or fragment.
type StaticLoader map[string]string

func (s StaticLoader) Load(_ context.Context, route string) (io.Reader, error) {
	if markup, ok := s[route]; ok {
		return strings.NewReader(markup), nil
	}
	if markup, ok := s[routePath(route)]; ok {
		return strings.NewReader(markup), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
}

// DirLoader serves views from HTML files: "/" maps to index.html and
// "/courses" to courses.html or courses/index.html.
type DirLoader struct {
	Dir string
}

func (d DirLoader) Load(ctx context.Context, route string) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := strings.Trim(filepath.FromSlash(filepath.Clean("/"+routePath(route))), string(filepath.Separator))
	candidates := []string{filepath.Join(d.Dir, "index.html")}
	if rel != "" && rel != "." {
		candidates = []string{
			filepath.Join(d.Dir, rel+".html"),
			filepath.Join(d.Dir, rel, "index.html"),
		}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read view for %s: %w", route, err)
		}
		return bytes.NewReader(data), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
}

// HTTPLoader fetches server-rendered views from the host application.
type HTTPLoader struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPLoader creates a loader resolving routes against baseURL.
func NewHTTPLoader(baseURL string, timeout time.Duration) (*HTTPLoader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}
	return &HTTPLoader{base: base, client: &http.Client{Timeout: timeout}}, nil
}

func (h *HTTPLoader) Load(ctx context.Context, route string) (io.Reader, error) {
	ref, err := url.Parse(route)
	if err != nil {
		return nil, fmt.Errorf("invalid route %q: %w", route, err)
	}
	target := h.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d loading %s", resp.StatusCode, target)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read view for %s: %w", route, err)
	}
	return bytes.NewReader(body), nil
}

// routePath strips query and fragment from a route.
func routePath(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if route == "" {
		return "/"
	}
	return route
}
