package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"race-timing-ingest/internal/model"
)

// QueueStore is the durable pending queue owned by one capture session.
// It is an append-only log: an edit to a queued entry is appended again under
// the same local id and the reconciler keeps the latest copy. ClearThrough
// removes only the oldest count entries, so captures appended while a flush's
// bulk send was in flight stay queued for the next flush.
type QueueStore interface {
	Append(ctx context.Context, entry model.PendingEntry) error
	DrainAll(ctx context.Context) ([]model.PendingEntry, error)
	ClearThrough(ctx context.Context, count int) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// FileQueueStore persists pending entries as JSON lines in a device-local
// file, surviving process restarts until flushed.
type FileQueueStore struct {
	path string
	mu   sync.Mutex
}

func NewFileQueueStore(path string) *FileQueueStore {
	return &FileQueueStore{path: path}
}

func (s *FileQueueStore) Append(ctx context.Context, entry model.PendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal pending entry: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to queue file: %w", err)
	}
	return f.Sync()
}

func (s *FileQueueStore) DrainAll(ctx context.Context) ([]model.PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *FileQueueStore) readAll() ([]model.PendingEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	var entries []model.PendingEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.PendingEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// a torn write at the tail must not block the rest of the queue
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	return entries, nil
}

// ClearThrough drops the oldest count parseable entries and rewrites the file
// with whatever was appended after the drain snapshot.
func (s *FileQueueStore) ClearThrough(ctx context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open queue file: %w", err)
	}

	var kept [][]byte
	removed := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.PendingEntry
		if removed < count && json.Unmarshal(line, &entry) == nil {
			removed++
			continue
		}
		kept = append(kept, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return fmt.Errorf("failed to read queue file: %w", err)
	}
	f.Close()

	if len(kept) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear queue file: %w", err)
		}
		return nil
	}

	out, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to rewrite queue file: %w", err)
	}
	defer out.Close()
	for _, line := range kept {
		if _, err := out.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to rewrite queue file: %w", err)
		}
	}
	return out.Sync()
}

func (s *FileQueueStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear queue file: %w", err)
	}
	return nil
}

func (s *FileQueueStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return 0, err
	}
	return len(dedupe(entries)), nil
}

// dedupe keeps the latest copy of each local id while preserving original
// capture order, so edits appended after the fact replace the queued row.
func dedupe(entries []model.PendingEntry) []model.PendingEntry {
	latest := make(map[string]model.PendingEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, seen := latest[e.LocalID]; !seen {
			order = append(order, e.LocalID)
		}
		latest[e.LocalID] = e
	}

	out := make([]model.PendingEntry, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
