package softbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samvad-hq/softbase-go/pkg/httpclient"
)

const (
	endpointCreate = "/create"
	endpointRead   = "/read"
	endpointUpdate = "/update"
	endpointDelete = "/delete"
)

// Config is fixed when the client is constructed.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to a Softbase backend. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http httpclient.Client
	log  Logger
}

// New creates a client for baseURL. An empty apiKey is still sent as an empty X-API-Key header.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		cfg: Config{
			BaseURL: strings.TrimSuffix(baseURL, "/"),
			APIKey:  apiKey,
		},
		http: httpclient.NewRestyClient(0),
		log:  noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Create stores value under key with POST /create.
func (c *Client) Create(ctx context.Context, key string, value any) (*Response, error) {
	body, err := encodeRecord(key, value)
	if err != nil {
		return nil, err
	}
	return c.SendRequest(ctx, endpointCreate, RequestOptions{Method: http.MethodPost, Body: body})
}

// Read fetches a single record with GET /read/{key}. The key is not escaped.
func (c *Client) Read(ctx context.Context, key string) (*Response, error) {
	return c.SendRequest(ctx, endpointRead+"/"+key, RequestOptions{Method: http.MethodGet})
}

// ReadAll fetches every record with GET /read.
func (c *Client) ReadAll(ctx context.Context) (*Response, error) {
	return c.SendRequest(ctx, endpointRead, RequestOptions{Method: http.MethodGet})
}

// Update replaces the value under key with PUT /update.
func (c *Client) Update(ctx context.Context, key string, value any) (*Response, error) {
	body, err := encodeRecord(key, value)
	if err != nil {
		return nil, err
	}
	return c.SendRequest(ctx, endpointUpdate, RequestOptions{Method: http.MethodPut, Body: body})
}

// Delete removes a single record with DELETE /delete/{key}.
func (c *Client) Delete(ctx context.Context, key string) (*Response, error) {
	return c.SendRequest(ctx, endpointDelete+"/"+key, RequestOptions{Method: http.MethodDelete})
}

// DeleteAll removes every record with DELETE /delete.
func (c *Client) DeleteAll(ctx context.Context) (*Response, error) {
	return c.SendRequest(ctx, endpointDelete, RequestOptions{Method: http.MethodDelete})
}

type recordBody struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func encodeRecord(key string, value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(recordBody{Key: key, Value: value}); err != nil {
		return nil, fmt.Errorf("softbase: encode value for key %q: %w", key, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
