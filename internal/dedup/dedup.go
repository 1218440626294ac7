// Package dedup implements the per-worker {processed, in_flight}
// deduplication set described throughout spec §4: a mutex-guarded pair of
// string sets, with the processed half persisted to disk as a flat JSON
// array on every addition and on graceful shutdown. in_flight is
// memory-only, matching the Downloader, Transcriber, and Classifier's
// identical pattern in the original implementation — generalized here
// into one shared type instead of three copies of the same logic.
package dedup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"podcleaner/internal/logger"
)

// Set tracks items that are fully processed and items currently being
// processed ("in flight"), guarded by a single mutex so both can be
// checked-and-updated atomically with respect to each other.
type Set struct {
	mu         sync.Mutex
	path       string
	processed  map[string]struct{}
	inFlight   map[string]struct{}
}

// NewSet loads path (a flat JSON array of strings) if it exists, or
// starts empty. path's directory is created if missing.
func NewSet(path string) (*Set, error) {
	s := &Set{
		path:      path,
		processed: make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Error("dedup_load_failed", "path", path, "error", err)
		return s, nil
	}
	for _, item := range items {
		s.processed[item] = struct{}{}
	}
	logger.Info("dedup_loaded", "path", path, "count", len(s.processed))
	return s, nil
}

// IsProcessed reports whether item has already completed.
func (s *Set) IsProcessed(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[item]
	return ok
}

// IsInFlight reports whether item is currently being worked on.
func (s *Set) IsInFlight(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[item]
	return ok
}

// TryBegin atomically checks both processed and in_flight and, if item is
// in neither, marks it in_flight and returns (false, false). It is the single
// entry point every worker's request handler should use to avoid a
// check-then-act race between IsProcessed/IsInFlight and marking.
func (s *Set) TryBegin(item string) (alreadyProcessed, alreadyInFlight bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[item]; ok {
		return true, false
	}
	if _, ok := s.inFlight[item]; ok {
		return false, true
	}
	s.inFlight[item] = struct{}{}
	return false, false
}

// Complete moves item from in_flight to processed and persists the
// processed set to disk before returning, so a _COMPLETE publish that
// follows is guaranteed to observe durable state.
func (s *Set) Complete(item string) error {
	s.mu.Lock()
	delete(s.inFlight, item)
	s.processed[item] = struct{}{}
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// Release removes item from in_flight without marking it processed, used
// on the error path of a worker's handler.
func (s *Set) Release(item string) {
	s.mu.Lock()
	delete(s.inFlight, item)
	s.mu.Unlock()
}

// Persist flushes the processed set to disk, used on graceful shutdown.
func (s *Set) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Set) persistLocked() error {
	items := make([]string, 0, len(s.processed))
	for item := range s.processed {
		items = append(items, item)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".dedup-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
