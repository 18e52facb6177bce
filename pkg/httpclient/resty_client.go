package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a RestyClient. A zero timeout leaves requests bounded only by their context.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return &RestyClient{client: NewRestyHTTPClient(timeout)}
}

// WrapResty adapts an already configured resty.Client.
func WrapResty(c *resty.Client) *RestyClient {
	if c == nil {
		c = NewRestyHTTPClient(0)
	}
	return &RestyClient{client: c}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// Do performs exactly one HTTP request. Non-2xx statuses are returned as responses, not errors.
func (r *RestyClient) Do(ctx context.Context, in Request) (Response, error) {
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	req := r.client.R().SetContext(ctx)
	if len(in.Headers) > 0 {
		req.SetHeaders(in.Headers)
	}
	if in.Body != nil {
		req.SetBody(in.Body)
	}
	resp, err := req.Execute(in.Method, in.URL)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", in.Method, in.URL, err)
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte        { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int     { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Header() http.Header { return r.resp.Header() }
