// Package localstate provides a durable JSON key/value store for the
// client-session state: XP total, the practice ledger, and daily stats.
// The browser original kept these in localStorage; here a single in-process
// owner does the read-modify-write, so no cross-writer locking is needed.
package localstate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// Store is a file-backed key/value store. Each key is serialized
// independently; a key that is absent or unparsable falls back to the
// caller's zero value instead of failing, so no schema migration is needed.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *observability.Logger
	data   map[string]json.RawMessage
}

// NewStore opens (or creates) the store at path. A missing or corrupt file
// yields an empty store rather than an error.
func NewStore(path string, logger *observability.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		data:   make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(context.Background(), "Failed to read local state file, starting empty", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return s
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn(context.Background(), "Local state file unparsable, starting empty", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		s.data = make(map[string]json.RawMessage)
	}
	return s
}

// Get unmarshals the value stored under key into `into`. Returns false when
// the key is absent or the stored value does not parse; `into` is left
// untouched in that case.
func (s *Store) Get(key string, into interface{}) bool {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	if err := json.Unmarshal(raw, into); err != nil {
		s.logger.Warn(context.Background(), "Stored value unparsable, using zero value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Put serializes value under key and flushes the whole store to disk with an
// atomic rename.
func (s *Store) Put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to marshal state key %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = raw
	return s.flushLocked()
}

// Delete removes key and flushes. Missing keys are a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	blob, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal state file")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".flashquiz-state-*")
	if err != nil {
		return contextutils.WrapError(err, "failed to create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return contextutils.WrapError(err, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return contextutils.WrapError(err, "failed to close state file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return contextutils.WrapError(err, "failed to replace state file")
	}
	return nil
}
