package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/samvad-hq/softbase-go/internal/logger"
	"github.com/samvad-hq/softbase-go/internal/storage"
	"github.com/samvad-hq/softbase-go/pkg/publishers"
	"github.com/samvad-hq/softbase-go/pkg/softbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []publishers.Event
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, evt publishers.Event) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if r.err != nil {
		return 0, r.err
	}
	return 1, nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newSandbox(t *testing.T, opts Options) (*softbase.Client, *recordingEvents, *httptest.Server) {
	t.Helper()
	store, err := storage.NewStore("memory", "", storage.Options{})
	require.NoError(t, err)
	events := &recordingEvents{}
	srv := httptest.NewServer(New(store, events, logger.NopLogger(), opts).Handler())
	t.Cleanup(srv.Close)
	return softbase.New(srv.URL, opts.APIKey), events, srv
}

func TestRecordLifecycleThroughClient(t *testing.T) {
	client, events, _ := newSandbox(t, Options{APIKey: "k"})
	ctx := context.Background()

	resp, err := client.Create(ctx, "foo", 42)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	var created struct {
		Key   string `json:"key"`
		Value int    `json:"value"`
	}
	require.NoError(t, resp.DecodeData(&created))
	assert.Equal(t, "foo", created.Key)
	assert.Equal(t, 42, created.Value)

	resp, err = client.Create(ctx, "foo", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "key already exists", resp.Data)

	resp, err = client.Update(ctx, "foo", map[string]any{"nested": true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = client.Read(ctx, "foo")
	require.NoError(t, err)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "unexpected data %#v", resp.Data)
	assert.Equal(t, map[string]any{"nested": true}, data["value"])

	_, err = client.Create(ctx, "bar", "x")
	require.NoError(t, err)
	resp, err = client.ReadAll(ctx)
	require.NoError(t, err)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "bar", list[0].(map[string]any)["key"])

	resp, err = client.Delete(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = client.Delete(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "not found", resp.Data)

	resp, err = client.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"deleted": float64(1)}, resp.Data)

	resp, err = client.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"deleted": float64(0)}, resp.Data)

	assert.Equal(t, []string{
		publishers.EventRecordCreated,
		publishers.EventRecordUpdated,
		publishers.EventRecordCreated,
		publishers.EventRecordDeleted,
		publishers.EventRecordsCleared,
		publishers.EventRecordsCleared,
	}, events.types())
}

func TestKeysWithSlashesRoundTrip(t *testing.T) {
	client, _, _ := newSandbox(t, Options{})
	ctx := context.Background()

	_, err := client.Create(ctx, "users/42", "ada")
	require.NoError(t, err)

	resp, err := client.Read(ctx, "users/42")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestWrongAPIKeyIsRejected(t *testing.T) {
	_, _, srv := newSandbox(t, Options{APIKey: "right"})

	resp, err := softbase.New(srv.URL, "wrong").ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "unauthorized", resp.Data)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestInvalidBodiesAreRejected(t *testing.T) {
	client, events, _ := newSandbox(t, Options{})
	ctx := context.Background()

	resp, err := client.SendRequest(ctx, "/create", softbase.RequestOptions{Method: http.MethodPost, Body: []byte(`{"key":`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp, err = client.Create(ctx, " ", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp, err = client.Update(ctx, "missing", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	assert.Empty(t, events.types())
}

func TestCreateWithoutValueStoresNull(t *testing.T) {
	client, _, _ := newSandbox(t, Options{})
	ctx := context.Background()

	resp, err := client.SendRequest(ctx, "/create", softbase.RequestOptions{Method: http.MethodPost, Body: []byte(`{"key":"n"}`)})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)

	resp, err = client.Read(ctx, "n")
	require.NoError(t, err)
	data := resp.Data.(map[string]any)
	v, present := data["value"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestPublishFailureDoesNotChangeResponse(t *testing.T) {
	store, err := storage.NewStore("memory", "", storage.Options{})
	require.NoError(t, err)
	events := &recordingEvents{err: errors.New("sink down")}
	srv := httptest.NewServer(New(store, events, nil, Options{}).Handler())
	defer srv.Close()

	resp, err := softbase.New(srv.URL, "").Create(context.Background(), "k", 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Len(t, events.types(), 1)
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	client, _, _ := newSandbox(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})
	ctx := context.Background()

	first, err := client.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.Status)

	second, err := client.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, second.Status)
}

func TestCORSPreflightAllowsClientHeaders(t *testing.T) {
	_, _, srv := newSandbox(t, Options{APIKey: "k", CORSOrigins: []string{"https://app.example"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/create", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-api-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	allowed := strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Contains(t, allowed, "x-api-key")
	assert.Contains(t, allowed, "content-type")
}

func TestUnknownRouteIsPlainText(t *testing.T) {
	client, _, _ := newSandbox(t, Options{})

	resp, err := client.SendRequest(context.Background(), "/nope", softbase.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	_, isText := resp.Data.(string)
	assert.True(t, isText)
}
