package sanitize

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// VideoExtensions lists the file extensions treated as videos.
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

// IsVideo reports whether name has one of the VideoExtensions, ignoring case.
func IsVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// Rename records one performed rename.
type Rename struct {
	Old string
	New string
}

// Resolver hands out unique names within one batch. A name already claimed
// gets a "_N" suffix before its extension, N counting up from 1.
type Resolver struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewResolver() *Resolver {
	return &Resolver{seen: make(map[string]struct{})}
}

// Claim returns name, or the first free "_N" variant of it, and marks the
// result as taken.
func (r *Resolver) Claim(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := name
	if _, taken := r.seen[candidate]; taken {
		base, ext := SplitExt(name)
		for counter := 1; ; counter++ {
			candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
			if _, taken := r.seen[candidate]; !taken {
				break
			}
		}
	}
	r.seen[candidate] = struct{}{}
	return candidate
}

// Plan computes the final name of every entry in first-seen order. Names in
// keep stay as they are and are claimed before any other entry.
func Plan(names []string, keep map[string]bool) []Rename {
	resolver := NewResolver()
	for _, name := range names {
		if keep[name] {
			resolver.Claim(name)
		}
	}
	plan := make([]Rename, 0, len(names))
	for _, name := range names {
		if keep[name] {
			plan = append(plan, Rename{Old: name, New: name})
			continue
		}
		plan = append(plan, Rename{Old: name, New: resolver.Claim(Name(name))})
	}
	return plan
}

// RenameFolder sanitizes the name of every video in dir. The audit log at
// logPath is rewritten with one "Renamed <old> to <new>" line per change.
// Files are first moved to temporary names so that a target equal to another
// file's current name never overwrites it. Files named in keep are left
// untouched and their names are never handed to another file.
func RenameFolder(dir, logPath string, keep map[string]bool) ([]Rename, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsVideo(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("creating rename log: %w", err)
	}
	defer logFile.Close()
	logWriter := bufio.NewWriter(logFile)
	defer logWriter.Flush()

	var changed []Rename
	for _, r := range Plan(names, keep) {
		if r.Old != r.New {
			changed = append(changed, r)
		}
	}

	staged := make([]string, len(changed))
	for i, r := range changed {
		tmp := filepath.Join(dir, fmt.Sprintf(".ytup-rename-%d%s", i, filepath.Ext(r.New)))
		if err := os.Rename(filepath.Join(dir, r.Old), tmp); err != nil {
			return rollback(dir, changed, staged[:i], err)
		}
		staged[i] = tmp
	}

	for i, r := range changed {
		if err := os.Rename(staged[i], filepath.Join(dir, r.New)); err != nil {
			return changed[:i], fmt.Errorf("renaming %s to %s: %w", r.Old, r.New, err)
		}
		if _, err := fmt.Fprintf(logWriter, "Renamed %s to %s\n", r.Old, r.New); err != nil {
			return changed[:i+1], fmt.Errorf("writing rename log: %w", err)
		}
	}
	return changed, nil
}

func rollback(dir string, changed []Rename, staged []string, cause error) ([]Rename, error) {
	for i := range staged {
		_ = os.Rename(staged[i], filepath.Join(dir, changed[i].Old))
	}
	return nil, fmt.Errorf("staging rename of %s: %w", changed[len(staged)].Old, cause)
}
