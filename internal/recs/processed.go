package recs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ProcessedSet is the durable set of recommendation identifiers that already
// produced an execution attempt. The backing file holds one identifier per
// line and is only ever appended to, synced per write, so a crash between
// batch elements loses at most work that is safe to redo.
type ProcessedSet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	file *os.File
}

// LoadProcessedSet reads (creating if needed) the processed-identifier file.
func LoadProcessedSet(path string) (*ProcessedSet, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create processed-set dir: %w", err)
		}
	}

	ids := make(map[string]struct{})
	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			if id := strings.TrimSpace(scanner.Text()); id != "" {
				ids[id] = struct{}{}
			}
		}
		existing.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read processed set: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open processed set: %w", err)
	}
	return &ProcessedSet{ids: ids, file: f}, nil
}

// Contains reports whether the identifier was already processed.
func (s *ProcessedSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records the identifier durably before returning.
func (s *ProcessedSet) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return nil
	}
	if _, err := s.file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("append processed id: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync processed set: %w", err)
	}
	s.ids[id] = struct{}{}
	return nil
}

// Len returns the number of processed identifiers.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Close closes the backing file.
func (s *ProcessedSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
