// Package history keeps the list of finished sessions, newest first, and
// persists it as one JSON blob under a single key.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/metrics"
)

// Key is the storage key holding the serialized history.
const Key = "session_history"

// KV is a get/set blob store.
type KV interface {
	// Get reports ok=false when the key has never been set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store is the in-memory history backed by a KV. It is safe for concurrent
// use. Persistence failures never lose in-memory state.
type Store struct {
	kv      KV
	logger  *slog.Logger
	metrics *metrics.Metrics

	// saveMu orders saves so the persisted blob follows the in-memory list.
	saveMu  sync.Mutex
	mu      sync.RWMutex
	records []types.SessionRecord
}

func New(kv KV, logger *slog.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger, metrics: m}
}

// Load replaces the in-memory list with the persisted one. Missing data
// yields an empty list. Unreadable or corrupt data also yields an empty
// list; the error is logged and returned for the caller's information.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		s.reset()
		s.logger.Error("history load failed, starting empty", "error", err)
		return core.NewPersistenceFailedError("load", err)
	}
	if !ok || len(raw) == 0 {
		s.reset()
		return nil
	}
	var records []types.SessionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		s.reset()
		s.logger.Error("history data corrupt, starting empty", "error", err)
		return core.NewPersistenceFailedError("decode", err)
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	s.logger.Debug("history loaded", "records", len(records))
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}

// List returns a copy of all records, newest first.
func (s *Store) List() []types.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SessionRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Get(id string) (types.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return types.SessionRecord{}, false
}

// Prepend adds rec at the front and saves. The record stays in memory even
// when saving fails.
func (s *Store) Prepend(ctx context.Context, rec types.SessionRecord) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.records = append([]types.SessionRecord{rec}, s.records...)
	data, err := json.Marshal(s.records)
	s.mu.Unlock()
	if err != nil {
		return s.saveFailed("encode", err)
	}
	return s.save(ctx, data)
}

// Remove deletes the record with id and saves. It reports whether a record
// was removed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.records = append(s.records[:idx:idx], s.records[idx+1:]...)
	data, err := json.Marshal(s.records)
	s.mu.Unlock()
	if err != nil {
		return true, s.saveFailed("encode", err)
	}
	return true, s.save(ctx, data)
}

func (s *Store) save(ctx context.Context, data []byte) error {
	if err := s.kv.Set(ctx, Key, data); err != nil {
		return s.saveFailed("save", err)
	}
	s.metrics.RecordHistoryWrite(true)
	return nil
}

func (s *Store) saveFailed(op string, err error) error {
	s.metrics.RecordHistoryWrite(false)
	s.logger.Error("history save failed, keeping in memory", "op", op, "error", err)
	return core.NewPersistenceFailedError(op, err)
}
