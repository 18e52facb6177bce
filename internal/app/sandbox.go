package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/samvad-hq/softbase-go/internal/config"
	"github.com/samvad-hq/softbase-go/internal/logger"
	"github.com/samvad-hq/softbase-go/internal/server"
	"github.com/samvad-hq/softbase-go/internal/storage"
	"github.com/samvad-hq/softbase-go/pkg/publishers"
)

// Sandbox is the local Softbase backend runtime. It owns the record store,
// the change event fanout and the HTTP listener.
type Sandbox struct {
	cfg      *config.Config
	fanout   *publishers.Fanout
	store    storage.Store
	listener net.Listener
	httpSrv  *http.Server
	log      logger.Logger
}

// NewSandbox builds a sandbox runtime and binds its listener.
func NewSandbox(ctx context.Context, cfg *config.Config, log logger.Logger) (*Sandbox, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fanout, err := publishers.FromFile(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	log.InfoObj("publishers loaded", "publishers_meta", map[string]any{
		"file":  cfg.PublishersFile,
		"count": fanout.Size(),
	})

	storeOpts := storage.Options{
		RecordTTL:       cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"record_ttl_seconds":       int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	listener, err := net.Listen("tcp", cfg.SandboxAddr)
	if err != nil {
		_ = fanout.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.SandboxAddr, err)
	}

	api := server.New(store, fanout, log, server.Options{
		APIKey:         cfg.SandboxAPIKey,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	return &Sandbox{
		cfg:      cfg,
		fanout:   fanout,
		store:    store,
		listener: listener,
		httpSrv: &http.Server{
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}, nil
}

// Addr returns the bound listener address.
func (s *Sandbox) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves requests until the context is cancelled, then shuts down gracefully.
func (s *Sandbox) Run(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return fmt.Errorf("sandbox is not initialized")
	}
	defer s.closeResources()

	s.log.InfoObj("sandbox listening", "sandbox_state", map[string]any{
		"addr":             s.Addr().String(),
		"auth_enabled":     s.cfg.SandboxAPIKey != "",
		"publishers_count": s.fanout.Size(),
		"rate_limit_rps":   s.cfg.RateLimitRPS,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		s.log.InfoObj("sandbox shutting down", "reason", ctx.Err().Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// closeResources safely closes the fanout and storage backend, logging any errors encountered.
func (s *Sandbox) closeResources() {
	if err := s.fanout.Close(); err != nil {
		s.log.ErrorObj("publishers close failed", "error", err.Error())
	}
	if err := s.store.Close(); err != nil {
		s.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
