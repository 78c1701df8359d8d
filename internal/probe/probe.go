// Package probe issues the HTTP requests driving a verification run: a
// trigger request that provokes the system under test into producing a
// trace, and a fetch request that retrieves the captured segment document
// from the collector.
//
// Every call is independent and idempotent; no state is carried between
// invocations beyond what the caller threads through.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Prober performs a single synchronous probe cycle step against the
// system under test. Implementations must be safe for repeated calls.
type Prober interface {
	// Trigger issues the request that provokes the system under test into
	// producing the observable artifact (e.g. GET /ping on the producer).
	Trigger(ctx context.Context) error

	// Fetch retrieves the raw artifact body from the collector endpoint.
	Fetch(ctx context.Context) ([]byte, error)
}

// ProbeError reports a failed probe request.
//
// Transient errors (connection refused, timeout, 5xx) are absorbed by the
// retry loop: the system under test may simply not have published the
// artifact yet. Non-transient errors (4xx, malformed body) surface
// immediately since they are not expected to self-heal.
type ProbeError struct {
	Op        string // "trigger", "fetch", or "decode"
	URL       string
	Status    int // HTTP status, 0 for network-level failures
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("probe %s %s: unexpected status %d (%s)", e.Op, e.URL, e.Status, kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("probe %s %s: %v (%s)", e.Op, e.URL, e.Err, kind)
	}
	return fmt.Sprintf("probe %s %s failed (%s)", e.Op, e.URL, kind)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient probe error.
// Uses errors.As to handle wrapped errors.
func IsTransient(err error) bool {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// HTTPProber probes the system under test over HTTP.
type HTTPProber struct {
	client     *http.Client
	triggerURL string
	fetchURL   string
}

// NewHTTPProber builds a prober from the service base URL, the target path
// to trigger, and the collector URL to fetch captured segments from.
// The timeout bounds each individual request.
func NewHTTPProber(serviceURL, targetPath, collectorURL string, timeout time.Duration) (*HTTPProber, error) {
	triggerURL, err := joinURL(serviceURL, targetPath)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL %q: %w", serviceURL, err)
	}
	if _, err := url.ParseRequestURI(collectorURL); err != nil {
		return nil, fmt.Errorf("invalid collector URL %q: %w", collectorURL, err)
	}

	return &HTTPProber{
		client:     &http.Client{Timeout: timeout},
		triggerURL: triggerURL,
		fetchURL:   collectorURL,
	}, nil
}

// Trigger hits the target path on the system under test. The response body
// is discarded; only reachability and status matter.
func (p *HTTPProber) Trigger(ctx context.Context) error {
	resp, err := p.get(ctx, "trigger", p.triggerURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fetch retrieves the captured artifact from the collector.
func (p *HTTPProber) Fetch(ctx context.Context) ([]byte, error) {
	resp, err := p.get(ctx, "fetch", p.fetchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProbeError{Op: "fetch", URL: p.fetchURL, Transient: true, Err: err}
	}
	return body, nil
}

func (p *HTTPProber) get(ctx context.Context, op, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ProbeError{Op: op, URL: rawURL, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all transient while the
		// topology is still coming up.
		return nil, &ProbeError{Op: op, URL: rawURL, Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &ProbeError{
			Op:        op,
			URL:       rawURL,
			Status:    resp.StatusCode,
			Transient: resp.StatusCode >= 500,
		}
	}

	return resp, nil
}

func joinURL(base, path string) (string, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}
