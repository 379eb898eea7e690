package changelog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileName is the JSONL change log inside the store's base directory.
const FileName = "changelog.jsonl"

// FileSink appends change records as JSON lines.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the JSONL log at path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) //nolint:gosec // G304: path lives inside the store dir
	if err != nil {
		return nil, fmt.Errorf("opening change log: %w", err)
	}
	return &FileSink{file: f}, nil
}

// Append writes one record as a JSON line.
func (s *FileSink) Append(change Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("appending change: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
