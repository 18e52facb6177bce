// Package storage provides the sandbox record persistence.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/softbase-go/internal/domain"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned by Create when the key already holds a live record.
	ErrExists = errors.New("record already exists")
)

// Store persists key-value records.
type Store interface {
	Close() error
	Create(key string, value json.RawMessage) (domain.Record, error)
	Get(key string) (domain.Record, error)
	List() ([]domain.Record, error)
	Update(key string, value json.RawMessage) (domain.Record, error)
	Delete(key string) error
	DeleteAll() (int, error)
}

// Options controls retention characteristics for concrete store implementations.
// A zero RecordTTL keeps records until they are deleted.
type Options struct {
	RecordTTL       time.Duration
	CleanupInterval time.Duration
}

const defaultCleanupInterval = time.Hour

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "memory":
		return newMemoryStore(opts), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.RecordTTL < 0 {
		opts.RecordTTL = 0
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// expiryFor returns the zero time when records never expire.
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func alive(expiry, now time.Time) bool {
	return expiry.IsZero() || expiry.After(now)
}
