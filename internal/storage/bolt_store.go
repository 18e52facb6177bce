package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/softbase-go/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	recordBucket     = "records"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB.
// Each value is an 8-byte big-endian expiry (0 = never) followed by the JSON payload.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	recordTTL       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

type boltPayload struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		recordTTL:       opts.RecordTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) Create(key string, value json.RawMessage) (domain.Record, error) {
	return b.write(key, value, false)
}

func (b *boltStore) Update(key string, value json.RawMessage) (domain.Record, error) {
	return b.write(key, value, true)
}

// write stores value under key. mustExist selects update semantics, otherwise the key must be free.
func (b *boltStore) write(key string, value json.RawMessage, mustExist bool) (domain.Record, error) {
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{Key: key, Value: value, UpdatedAt: now.UTC()}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}

		exists := false
		if raw := bucket.Get([]byte(key)); raw != nil {
			_, expiry, ok := decodeEntry(key, raw)
			exists = ok && alive(expiry, now)
		}
		switch {
		case mustExist && !exists:
			return ErrNotFound
		case !mustExist && exists:
			return ErrExists
		}

		raw, err := encodeEntry(rec, expiryFor(now, b.recordTTL))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), raw)
	})
	if err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// Get returns the live record stored under key, dropping it when it has expired.
func (b *boltStore) Get(key string) (domain.Record, error) {
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return domain.Record{}, err
	}

	var rec domain.Record
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}

		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		decoded, expiry, ok := decodeEntry(key, raw)
		if !ok || !alive(expiry, now) {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
			return ErrNotFound
		}
		rec = decoded
		return nil
	})
	return rec, err
}

// List returns every live record in key order.
func (b *boltStore) List() ([]domain.Record, error) {
	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return nil, err
	}

	out := []domain.Record{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			rec, expiry, ok := decodeEntry(string(k), v)
			if ok && alive(expiry, now) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *boltStore) Delete(key string) error {
	now := b.now()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		_, expiry, ok := decodeEntry(key, raw)
		if err := bucket.Delete([]byte(key)); err != nil {
			return err
		}
		if !ok || !alive(expiry, now) {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAll drops every record and reports how many live records were removed.
func (b *boltStore) DeleteAll() (int, error) {
	now := b.now()
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}
		if err := bucket.ForEach(func(k, v []byte) error {
			if _, expiry, ok := decodeEntry(string(k), v); ok && alive(expiry, now) {
				removed++
			}
			return nil
		}); err != nil {
			return err
		}
		if err := tx.DeleteBucket([]byte(recordBucket)); err != nil {
			return err
		}
		_, err = tx.CreateBucket([]byte(recordBucket))
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// maybeCleanupExpired removes expired records on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b.recordTTL <= 0 {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := recordsBucket(tx)
		if err != nil {
			return err
		}

		var expired [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if _, expiry, ok := decodeEntry(string(k), v); !ok || !alive(expiry, now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func recordsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(recordBucket))
	if bucket == nil {
		return nil, fmt.Errorf("record bucket missing")
	}
	return bucket, nil
}

func encodeEntry(rec domain.Record, expiry time.Time) ([]byte, error) {
	payload, err := json.Marshal(boltPayload{Value: rec.Value, UpdatedAt: rec.UpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("encode record %q: %w", rec.Key, err)
	}
	buf := make([]byte, expiryValueBytes, expiryValueBytes+len(payload))
	if !expiry.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expiry.Unix()))
	}
	return append(buf, payload...), nil
}

// decodeEntry reports ok=false for corrupt values so callers treat them as absent.
func decodeEntry(key string, value []byte) (domain.Record, time.Time, bool) {
	if len(value) < expiryValueBytes {
		return domain.Record{}, time.Time{}, false
	}
	var expiry time.Time
	if unix := int64(binary.BigEndian.Uint64(value[:expiryValueBytes])); unix > 0 {
		expiry = time.Unix(unix, 0)
	}

	var payload boltPayload
	if err := json.Unmarshal(value[expiryValueBytes:], &payload); err != nil {
		return domain.Record{}, time.Time{}, false
	}
	return domain.Record{Key: key, Value: payload.Value, UpdatedAt: payload.UpdatedAt}, expiry, true
}
