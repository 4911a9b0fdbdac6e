// Package dedup keeps the append-only log of identifiers that have already
// been processed, so repeated runs never download the same source twice.
package dedup

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log is a newline-delimited identifier file. It is only ever appended to.
type Log struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file.
func (l *Log) Path() string {
	return l.path
}

// Load returns every identifier recorded so far. A missing log is an empty set.
func (l *Log) Load() (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	known := make(map[string]struct{})
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return known, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening dedup log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			known[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dedup log: %w", err)
	}
	return known, nil
}

// Record appends id, creating the log if needed.
func (l *Log) Record(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("empty identifier")
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("identifier %q spans lines", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating dedup log directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening dedup log for append: %w", err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("appending to dedup log: %w", err)
	}
	return f.Close()
}
