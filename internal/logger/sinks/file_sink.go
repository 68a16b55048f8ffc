package sinks

import (
	"fmt"
	"os"
	"sync"

	"gecko/internal/services"
)

// FileSink writes one plain-text line per log entry to an append-only
// file. Formatting is deliberately minimal (spec §1: console/file sink
// formatting is an out-of-scope detail left to hosts).
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens path for appending, creating it if necessary.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Write(entry services.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.file, "%d\t%s\t%s\t%d\n", entry.TimeNs, entry.Level, entry.Label.Name, entry.Sequence)
	if err != nil {
		return err
	}
	_, err = s.file.WriteString(entry.Text + "\n")
	return err
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
