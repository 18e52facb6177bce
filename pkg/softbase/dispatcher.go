package softbase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samvad-hq/softbase-go/pkg/httpclient"
)

const (
	// HeaderAPIKey carries the static API key on every request.
	HeaderAPIKey = "X-API-Key"

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// RequestOptions describes a request relative to the client's base URL.
type RequestOptions struct {
	Method  string
	Body    []byte
	Headers map[string]string
}

// SendRequest issues exactly one request to BaseURL+endpoint and normalizes the response.
// The X-API-Key and Content-Type headers always override caller-supplied values.
func (c *Client) SendRequest(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	url := c.cfg.BaseURL + escapeStrayPercent(endpoint)
	started := time.Now()

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     url,
		Headers: c.mergeHeaders(opts.Headers),
		Body:    opts.Body,
	})
	if err != nil {
		c.log.WarnObj("softbase request failed", "softbase_request", map[string]any{
			"method":   method,
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("softbase: %w", err)
	}

	out, err := NormalizeResponse(resp)
	c.log.DebugObj("softbase request dispatched", "softbase_request", map[string]any{
		"method":     method,
		"endpoint":   endpoint,
		"status":     resp.StatusCode(),
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// escapeStrayPercent rewrites every '%' not followed by two hex digits as "%25",
// so keys like "50%" reach the backend the way a browser fetch would send them.
func escapeStrayPercent(endpoint string) string {
	if !strings.Contains(endpoint, "%") {
		return endpoint
	}
	var b strings.Builder
	b.Grow(len(endpoint) + 4)
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == '%' && !(i+2 < len(endpoint) && isHex(endpoint[i+1]) && isHex(endpoint[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(endpoint[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func (c *Client) mergeHeaders(extra map[string]string) map[string]string {
	headers := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		switch http.CanonicalHeaderKey(k) {
		case http.CanonicalHeaderKey(HeaderAPIKey), headerContentType:
			continue
		}
		headers[k] = v
	}
	headers[HeaderAPIKey] = c.cfg.APIKey
	headers[headerContentType] = contentTypeJSON
	return headers
}
