package pkgrepo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/httputil"
	"github.com/fsmtools/fsm/pkg/pkg"
)

// HTTPSource serves packages from a remote repository publishing the same
// layout as a local manifest repository: <base>/repo.yaml plus artifacts
// under <base>/artifacts/.
//
// Name and format come from configuration rather than the manifest, so the
// source is addressable before the first fetch; the manifest's own
// declaration is verified against them on every listing. Transient fetch
// failures are retried with backoff; a source that stays unreachable shows
// up as a degraded repository in the index, not a failed one.
type HTTPSource struct {
	name     string
	format   string
	baseURL  string
	priority int
	client   *http.Client

	// retryDelay is the initial backoff between attempts.
	retryDelay time.Duration
}

// NewHTTPSource creates a remote source. baseURL is the repository root
// without a trailing slash.
func NewHTTPSource(name, format, baseURL string, priority int) *HTTPSource {
	return &HTTPSource{
		name:       name,
		format:     format,
		baseURL:    baseURL,
		priority:   priority,
		client:     &http.Client{Timeout: 30 * time.Second},
		retryDelay: time.Second,
	}
}

func (s *HTTPSource) Name() string   { return s.name }
func (s *HTTPSource) Format() string { return s.format }
func (s *HTTPSource) Priority() int  { return s.priority }

// ListPackages fetches and parses the remote manifest.
func (s *HTTPSource) ListPackages(ctx context.Context) ([]Record, error) {
	data, err := s.get(ctx, s.baseURL+"/repo.yaml")
	if err != nil {
		return nil, err
	}

	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err,
			"parsing manifest of repository %q", s.name)
	}
	if m.Name != s.name {
		return nil, errors.New(errors.ErrCodeInvalidManifest,
			"repository at %s calls itself %q, configured as %q", s.baseURL, m.Name, s.name)
	}
	if m.Format != s.format {
		return nil, errors.New(errors.ErrCodeInvalidManifest,
			"repository %q declares format %q, configured as %q", s.name, m.Format, s.format)
	}
	return m.Packages, nil
}

// Fetch streams a package artifact.
func (s *HTTPSource) Fetch(ctx context.Context, id pkg.ID) (io.ReadCloser, error) {
	records, err := s.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Name != id.Name {
			continue
		}
		url := fmt.Sprintf("%s/artifacts/%s-%s.%s", s.baseURL, r.Name, r.Version, s.format)
		data, err := s.get(ctx, url)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err,
				"artifact for %s", id).WithPackages(id.String())
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "repository %q does not carry %s", s.name, id).
		WithPackages(id.String())
}

// get performs a GET with retry on transient failures: network errors, 5xx
// responses and 429 rate limits retry; other statuses fail immediately.
func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := httputil.Retry(ctx, 3, s.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			return err
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &httputil.RetryableError{
				Err: fmt.Errorf("GET %s: %s", url, resp.Status),
			}
		}
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	})
	return body, err
}

var _ Source = (*HTTPSource)(nil)
