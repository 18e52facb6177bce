package softbase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samvad-hq/softbase-go/pkg/httpclient"
)

// ErrNoData is returned by DecodeData when the response carried no JSON data member.
var ErrNoData = errors.New("softbase: response has no json data")

// Response is the normalized result of every Softbase call.
//
// For JSON responses Data holds the decoded "data" member of the envelope
// (nil when the member is absent); for any other content type Data is the body text.
// A non-2xx Status is not an error.
type Response struct {
	Status int         `json:"status"`
	Data   any         `json:"data"`
	Header http.Header `json:"-"`

	hasData bool
	rawData json.RawMessage
}

// OK reports whether Status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// HasData reports whether Data came from the response. It is false when a JSON body had no "data" member.
func (r *Response) HasData() bool {
	return r.hasData
}

// DecodeData unmarshals the JSON "data" member into out.
func (r *Response) DecodeData(out any) error {
	if r.rawData == nil {
		return ErrNoData
	}
	if err := json.Unmarshal(r.rawData, out); err != nil {
		return fmt.Errorf("softbase: decode data: %w", err)
	}
	return nil
}

// NormalizeResponse converts a raw HTTP response into a Response.
// Malformed JSON under a JSON content type is returned as an error.
func NormalizeResponse(resp httpclient.Response) (*Response, error) {
	out := &Response{Status: resp.StatusCode(), Header: resp.Header()}
	body := resp.Body()

	if !isJSON(out.Header.Get("Content-Type")) {
		out.Data = string(body)
		out.hasData = true
		return out, nil
	}

	var doc json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("softbase: decode json response (status %d): %w", out.Status, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(doc), []byte("{")) {
		return out, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(doc, &members); err != nil {
		return nil, fmt.Errorf("softbase: decode json envelope: %w", err)
	}
	raw, present := members["data"]
	if !present {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out.Data); err != nil {
		return nil, fmt.Errorf("softbase: decode json data: %w", err)
	}
	out.hasData = true
	out.rawData = raw
	return out, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
