package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samvad-hq/softbase-go/internal/domain"
	"github.com/samvad-hq/softbase-go/internal/logger"
	"github.com/samvad-hq/softbase-go/internal/storage"
	"github.com/samvad-hq/softbase-go/pkg/publishers"
)

const maxBodyBytes = 1 << 20

// EventPublisher receives record change events after successful mutations.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Options configures the middleware around the record API.
type Options struct {
	APIKey         string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server serves the Softbase record API on top of a Store.
type Server struct {
	store  storage.Store
	events EventPublisher
	log    logger.Logger
	opts   Options
}

// New builds a Server. A nil events publisher disables change events.
func New(store storage.Store, events EventPublisher, log logger.Logger, opts Options) *Server {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Server{store: store, events: events, log: log, opts: opts}
}

// Handler returns the routed API wrapped in CORS, logging, rate limiting and API key checks.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create", s.handleCreate)
	mux.HandleFunc("GET /read", s.handleReadAll)
	mux.HandleFunc("GET /read/{key...}", s.handleRead)
	mux.HandleFunc("PUT /update", s.handleUpdate)
	mux.HandleFunc("DELETE /delete", s.handleDeleteAll)
	mux.HandleFunc("DELETE /delete/{key...}", s.handleDelete)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	var h http.Handler = mux
	h = requireAPIKey(s.opts.APIKey, h)
	h = rateLimit(s.opts.RateLimitRPS, s.opts.RateLimitBurst, h)
	h = logRequests(s.log, h)
	h = withCORS(s.opts.CORSOrigins, h)
	return h
}

type recordRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecordRequest(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Create(req.Key, req.Value)
	if err != nil {
		s.writeStoreError(w, "create", req.Key, err)
		return
	}
	s.publish(r.Context(), publishers.NewRecordEvent(publishers.EventRecordCreated, rec))
	writeData(w, http.StatusCreated, rec)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	rec, err := s.store.Get(key)
	if err != nil {
		s.writeStoreError(w, "read", key, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleReadAll(w http.ResponseWriter, _ *http.Request) {
	recs, err := s.store.List()
	if err != nil {
		s.writeStoreError(w, "read_all", "", err)
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecordRequest(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Update(req.Key, req.Value)
	if err != nil {
		s.writeStoreError(w, "update", req.Key, err)
		return
	}
	s.publish(r.Context(), publishers.NewRecordEvent(publishers.EventRecordUpdated, rec))
	writeData(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.store.Delete(key); err != nil {
		s.writeStoreError(w, "delete", key, err)
		return
	}
	s.publish(r.Context(), publishers.NewRecordEvent(publishers.EventRecordDeleted, domain.Record{Key: key}))
	writeData(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteAll()
	if err != nil {
		s.writeStoreError(w, "delete_all", "", err)
		return
	}
	s.publish(r.Context(), publishers.NewClearedEvent(n))
	writeData(w, http.StatusOK, map[string]int{"deleted": n})
}

// publish delivers evt to every sink. Failures are logged and never alter the response.
func (s *Server) publish(ctx context.Context, evt publishers.Event) {
	if s.events == nil {
		return
	}
	delivered, err := s.events.Publish(ctx, evt)
	if err != nil {
		s.log.WarnObj("record event delivery failed", "record_event", map[string]any{
			"type":      evt.Type,
			"key":       evt.Key,
			"delivered": delivered,
			"error":     err.Error(),
		})
		return
	}
	s.log.DebugObj("record event delivered", "record_event", map[string]any{
		"type":      evt.Type,
		"key":       evt.Key,
		"delivered": delivered,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, op, key string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeText(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrExists):
		writeText(w, http.StatusConflict, "key already exists")
	default:
		s.log.ErrorObj("record store failure", "store_error", map[string]any{
			"op":    op,
			"key":   key,
			"error": err.Error(),
		})
		writeText(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeRecordRequest(w http.ResponseWriter, r *http.Request) (recordRequest, bool) {
	var req recordRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return req, false
	}
	if strings.TrimSpace(req.Key) == "" {
		writeText(w, http.StatusBadRequest, "key is required")
		return req, false
	}
	if len(req.Value) == 0 {
		req.Value = json.RawMessage("null")
	}
	return req, true
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Data any `json:"data"`
	}{Data: data})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
