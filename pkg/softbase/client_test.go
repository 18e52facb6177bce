package softbase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

type recorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

// newBackend records every request and answers with the given handler.
func newBackend(t *testing.T, respond http.HandlerFunc) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		rec.mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestCreateSendsRecordAndNormalizesEnvelope(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusCreated, `{"data":{"id":"foo"}}`))
	client := New(srv.URL, "k")

	resp, err := client.Create(context.Background(), "foo", 42)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, map[string]any{"id": "foo"}, resp.Data)
	assert.True(t, resp.OK())
	assert.True(t, resp.HasData())

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/create", reqs[0].Path)
	assert.Equal(t, `{"key":"foo","value":42}`, reqs[0].Body)
	assert.Equal(t, "k", reqs[0].Header.Get("X-API-Key"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
}

func TestOperationsUseDocumentedRoutes(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":null}`))
	client := New(srv.URL+"/", "k")
	ctx := context.Background()

	calls := []func() (*Response, error){
		func() (*Response, error) { return client.Create(ctx, "a", "v") },
		func() (*Response, error) { return client.Read(ctx, "a") },
		func() (*Response, error) { return client.ReadAll(ctx) },
		func() (*Response, error) { return client.Update(ctx, "a", []int{1, 2}) },
		func() (*Response, error) { return client.Delete(ctx, "a") },
		func() (*Response, error) { return client.DeleteAll(ctx) },
	}
	for _, call := range calls {
		_, err := call()
		require.NoError(t, err)
	}

	want := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/create", `{"key":"a","value":"v"}`},
		{http.MethodGet, "/read/a", ""},
		{http.MethodGet, "/read", ""},
		{http.MethodPut, "/update", `{"key":"a","value":[1,2]}`},
		{http.MethodDelete, "/delete/a", ""},
		{http.MethodDelete, "/delete", ""},
	}
	reqs := rec.all()
	require.Len(t, reqs, len(want))
	for i, w := range want {
		assert.Equal(t, w.method, reqs[i].Method, "request %d", i)
		assert.Equal(t, w.path, reqs[i].Path, "request %d", i)
		assert.Equal(t, w.body, reqs[i].Body, "request %d", i)
		assert.Equal(t, "k", reqs[i].Header.Get("X-API-Key"), "request %d", i)
		assert.Equal(t, "application/json", reqs[i].Header.Get("Content-Type"), "request %d", i)
	}
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "not found")
	})

	resp, err := New(srv.URL, "k").Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "not found", resp.Data)
	assert.False(t, resp.OK())
}

func TestDeleteAllTwiceIssuesTwoRequests(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":{"deleted":0}}`))
	client := New(srv.URL, "k")

	for i := 0; i < 2; i++ {
		_, err := client.DeleteAll(context.Background())
		require.NoError(t, err)
	}
	reqs := rec.all()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/delete", r.Path)
	}
}

func TestEmptyAPIKeyIsStillSent(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":[]}`))

	_, err := New(srv.URL, "").ReadAll(context.Background())
	require.NoError(t, err)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	values, present := reqs[0].Header["X-Api-Key"]
	assert.True(t, present, "X-API-Key header must be present")
	assert.Equal(t, []string{""}, values)
}

func TestSendRequestOverridesCallerHeaders(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":1}`))
	client := New(srv.URL, "real")

	_, err := client.SendRequest(context.Background(), "/read", RequestOptions{
		Method: http.MethodGet,
		Headers: map[string]string{
			"x-api-key":    "spoofed",
			"CONTENT-TYPE": "text/xml",
			"X-Trace":      "abc",
		},
	})
	require.NoError(t, err)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"real"}, reqs[0].Header.Values("X-API-Key"))
	assert.Equal(t, []string{"application/json"}, reqs[0].Header.Values("Content-Type"))
	assert.Equal(t, "abc", reqs[0].Header.Get("X-Trace"))
}

func TestEmptyKeyIsSentUnchanged(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":null}`))

	_, err := New(srv.URL, "k").Read(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/read/", rec.all()[0].Path)
}

func TestMalformedKeyIsSentUnchanged(t *testing.T) {
	srv, rec := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, r.URL.EscapedPath())
	})
	client := New(srv.URL, "k")
	ctx := context.Background()

	cases := []struct {
		key, path, escaped string
	}{
		{"50%", "/read/50%", "/read/50%25"},
		{"a%zz", "/read/a%zz", "/read/a%25zz"},
		{"%", "/read/%", "/read/%25"},
		{"a%41", "/read/aA", "/read/a%41"},
	}
	for _, tc := range cases {
		resp, err := client.Read(ctx, tc.key)
		require.NoError(t, err, "key %q", tc.key)
		assert.Equal(t, http.StatusBadRequest, resp.Status, "key %q", tc.key)
		assert.Equal(t, tc.escaped, resp.Data, "key %q", tc.key)
	}

	resp, err := client.Delete(ctx, "100%")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	reqs := rec.all()
	require.Len(t, reqs, len(cases)+1)
	for i, tc := range cases {
		assert.Equal(t, tc.path, reqs[i].Path)
	}
	assert.Equal(t, "/delete/100%", reqs[len(cases)].Path)
}

func TestEscapeStrayPercent(t *testing.T) {
	cases := map[string]string{
		"/read/plain":  "/read/plain",
		"/read/50%":    "/read/50%25",
		"/read/%2F":    "/read/%2F",
		"/read/%2":     "/read/%252",
		"/read/%%41":   "/read/%25%41",
		"/delete/a%zz": "/delete/a%25zz",
	}
	for in, want := range cases {
		assert.Equal(t, want, escapeStrayPercent(in), "endpoint %q", in)
	}
}

func TestMalformedJSONIsReturnedAsError(t *testing.T) {
	srv, _ := newBackend(t, jsonReply(http.StatusOK, `{"data":`))

	resp, err := New(srv.URL, "k").ReadAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, resp)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr), "expected a wrapped *json.SyntaxError, got %v", err)
}

func TestTransportErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp, err := New(url, "k").Read(context.Background(), "foo")
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestCancelledContextStopsRequest(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":1}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, "k").ReadAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	assert.Empty(t, rec.all())
}

func TestUnencodableValueFailsBeforeDispatch(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":1}`))

	_, err := New(srv.URL, "k").Create(context.Background(), "ch", make(chan int))
	require.Error(t, err)
	assert.Empty(t, rec.all())
}

func TestValueIsNotHTMLEscaped(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":1}`))

	_, err := New(srv.URL, "k").Update(context.Background(), "html", "<b>&</b>")
	require.NoError(t, err)
	assert.Equal(t, `{"key":"html","value":"<b>&</b>"}`, rec.all()[0].Body)
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	srv, rec := newBackend(t, jsonReply(http.StatusOK, `{"data":"ok"}`))
	client := New(srv.URL, "k")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.ReadAll(context.Background())
			assert.NoError(t, err)
			if resp != nil {
				assert.Equal(t, "ok", resp.Data)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rec.all(), 16)
}

func TestConfigIsTrimmedAndCopied(t *testing.T) {
	client := New("https://kv.example.com/", "secret")
	cfg := client.Config()
	assert.Equal(t, "https://kv.example.com", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)

	cfg.APIKey = "changed"
	assert.Equal(t, "secret", client.Config().APIKey)
}

type recordingLogger struct {
	noopLogger
	mu    sync.Mutex
	debug []any
}

func (l *recordingLogger) DebugObj(_, _ string, obj any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, obj)
}

func TestLoggerNeverSeesAPIKey(t *testing.T) {
	srv, _ := newBackend(t, jsonReply(http.StatusOK, `{"data":1}`))
	log := &recordingLogger{}

	_, err := New(srv.URL, "top-secret", WithLogger(log)).ReadAll(context.Background())
	require.NoError(t, err)

	require.Len(t, log.debug, 1)
	entry, ok := log.debug[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/read", entry["endpoint"])
	assert.Equal(t, http.StatusOK, entry["status"])
	for _, v := range entry {
		assert.NotEqual(t, "top-secret", v)
	}
}
