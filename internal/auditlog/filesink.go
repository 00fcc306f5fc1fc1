package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink is the default audit sink: one newline-delimited JSON file per
// day, named by the event's UTC date.
type FileSink struct {
	dir string

	mu      sync.Mutex
	day     string
	file    *os.File
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Write(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := time.UnixMilli(e.Timestamp).UTC().Format("2006-01-02")
	if day != s.day || s.file == nil {
		if err := s.rotate(day); err != nil {
			return fmt.Errorf("auditlog: rotate: %w", err)
		}
	}

	blob, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("auditlog: marshal: %w", err)
	}
	if _, err := s.file.Write(append(blob, '\n')); err != nil {
		return fmt.Errorf("auditlog: write: %w", err)
	}
	return nil
}

func (s *FileSink) rotate(day string) error {
	if s.file != nil {
		s.file.Close()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("risk_audit_%s.ndjson", day))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	s.day = day
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
