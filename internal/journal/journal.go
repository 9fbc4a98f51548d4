// Package journal provides the append-only execution audit trail. One JSONL
// file is the record of truth for every validation and submission outcome;
// the dashboards read the same file.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one fully-formed journal line. Records are never rewritten.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   any       `json:"details"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Journal appends records to a newline-delimited JSON file. Writes are
// serialized under a mutex and synced to disk per record, so concurrent
// appends cannot interleave partial lines and a crash never truncates an
// acknowledged record.
type Journal struct {
	mu     sync.Mutex
	file   *os.File
	logger *zap.Logger
}

// Open opens (creating if needed) the journal file in append-only mode.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, logger: logger}, nil
}

// Append writes one record. errMsg is empty on success.
func (j *Journal) Append(action string, details any, success bool, errMsg string) error {
	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
		Success:   success,
		Error:     errMsg,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	j.logger.Info("journal append",
		zap.String("action", action),
		zap.Bool("success", success),
		zap.String("error", errMsg))
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// ReadAll loads every parseable record from a journal file. Malformed lines
// are skipped, matching the tolerant readers on the dashboard side.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
