package storage

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/samvad-hq/softbase-go/internal/domain"
)

type memoryEntry struct {
	rec    domain.Record
	expiry time.Time
}

// memoryStore keeps records in process memory. Expired entries are purged when touched.
type memoryStore struct {
	mu        sync.RWMutex
	records   map[string]memoryEntry
	recordTTL time.Duration
	now       func() time.Time
}

func newMemoryStore(opts Options) *memoryStore {
	return &memoryStore{
		records:   make(map[string]memoryEntry),
		recordTTL: opts.RecordTTL,
		now:       time.Now,
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Create(key string, value json.RawMessage) (domain.Record, error) {
	return m.write(key, value, false)
}

func (m *memoryStore) Update(key string, value json.RawMessage) (domain.Record, error) {
	return m.write(key, value, true)
}

func (m *memoryStore) write(key string, value json.RawMessage, mustExist bool) (domain.Record, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.liveLocked(key, now)
	switch {
	case mustExist && !exists:
		return domain.Record{}, ErrNotFound
	case !mustExist && exists:
		return domain.Record{}, ErrExists
	}

	rec := domain.Record{Key: key, Value: append(json.RawMessage(nil), value...), UpdatedAt: now.UTC()}
	m.records[key] = memoryEntry{rec: rec, expiry: expiryFor(now, m.recordTTL)}
	return rec, nil
}

func (m *memoryStore) Get(key string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveLocked(key, m.now())
	if !ok {
		return domain.Record{}, ErrNotFound
	}
	return entry.rec, nil
}

func (m *memoryStore) List() ([]domain.Record, error) {
	now := m.now()

	m.mu.RLock()
	out := make([]domain.Record, 0, len(m.records))
	for _, entry := range m.records {
		if alive(entry.expiry, now) {
			out = append(out, entry.rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.liveLocked(key, m.now()); !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *memoryStore) DeleteAll() (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, entry := range m.records {
		if alive(entry.expiry, now) {
			removed++
		}
	}
	m.records = make(map[string]memoryEntry)
	return removed, nil
}

// liveLocked returns the entry for key, removing it when expired. Callers hold mu for writing.
func (m *memoryStore) liveLocked(key string, now time.Time) (memoryEntry, bool) {
	entry, ok := m.records[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !alive(entry.expiry, now) {
		delete(m.records, key)
		return memoryEntry{}, false
	}
	return entry, true
}
