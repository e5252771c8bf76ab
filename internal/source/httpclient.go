package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geocontext/internal/metrics"
)

const defaultTimeout = 6 * time.Second

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and decodes the JSON body into out. All failure
// modes collapse to *Unavailable tagged with the provider name.
func getJSON(ctx context.Context, client httpDoer, provider, rawURL string, out any) error {
	return doJSON(ctx, client, provider, http.MethodGet, rawURL, "", nil, out)
}

// postForm performs a form POST (Overpass-style) and decodes the JSON body.
func postForm(ctx context.Context, client httpDoer, provider, rawURL string, form url.Values, out any) error {
	body := strings.NewReader(form.Encode())
	return doJSON(ctx, client, provider, http.MethodPost, rawURL, "application/x-www-form-urlencoded", body, out)
}

func doJSON(ctx context.Context, client httpDoer, provider, method, rawURL, contentType string, body io.Reader, out any) error {
	t0 := time.Now()
	metrics.AdapterRequestsTotal.WithLabelValues(provider).Inc()
	defer func() {
		metrics.AdapterDurationMs.WithLabelValues(provider).Observe(float64(time.Since(t0).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		metrics.AdapterFailTotal.WithLabelValues(provider).Inc()
		return unavailable(provider, "build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "geocontext/1.0")

	resp, err := client.Do(req)
	if err != nil {
		metrics.AdapterFailTotal.WithLabelValues(provider).Inc()
		return unavailable(provider, "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.AdapterFailTotal.WithLabelValues(provider).Inc()
		return unavailable(provider, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.AdapterFailTotal.WithLabelValues(provider).Inc()
		return unavailable(provider, "malformed payload", err)
	}
	return nil
}
