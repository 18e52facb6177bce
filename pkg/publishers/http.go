package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/softbase-go/pkg/httpclient"
)

// httpPublisher posts events as JSON to a webhook through the shared resty transport.
type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	hc := *cfg.HTTP
	hc.normalize()

	headers := make(map[string]string, len(hc.Headers)+1)
	for k, v := range hc.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"

	return &httpPublisher{
		id:      cfg.ID,
		method:  hc.Method,
		url:     hc.URL,
		headers: headers,
		client:  httpclient.NewRestyClient(time.Duration(hc.TimeoutSeconds) * time.Second),
		log:     ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := h.client.Do(ctx, httpclient.Request{
		Method:  h.method,
		URL:     h.url,
		Headers: h.headers,
		Body:    body,
	})
	if err != nil {
		return err
	}
	if status := resp.StatusCode(); status < 200 || status > 299 {
		return fmt.Errorf("webhook answered %d: %s", status, snippet(resp.Body(), 512))
	}

	h.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"event_type":   evt.Type,
		"status":       resp.StatusCode(),
	})
	return nil
}

func snippet(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}
