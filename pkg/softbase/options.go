package softbase

import (
	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/softbase-go/pkg/httpclient"
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport used for every request.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRestyClient sends requests through a caller-configured resty client (timeouts, proxies, TLS).
func WithRestyClient(rc *resty.Client) Option {
	return func(c *Client) {
		if rc != nil {
			c.http = httpclient.WrapResty(rc)
		}
	}
}

// WithLogger enables debug logging of dispatched requests.
func WithLogger(log Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}
