package dedup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingLogIsEmpty(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "downloaded_urls.txt"))
	known, err := log.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(known) != 0 {
		t.Fatalf("expected empty set, got %v", known)
	}
}

func TestRecordAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "downloaded_urls.txt")
	first := New(path)
	for _, url := range []string{"https://twitter.com/i/status/1", "https://youtu.be/abc"} {
		if err := first.Record(url); err != nil {
			t.Fatalf("Record(%q): %v", url, err)
		}
	}

	second := New(path)
	if err := second.Record("https://youtu.be/def"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	known, err := second.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, url := range []string{"https://twitter.com/i/status/1", "https://youtu.be/abc", "https://youtu.be/def"} {
		if _, ok := known[url]; !ok {
			t.Errorf("expected %q in log", url)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "https://twitter.com/i/status/1\nhttps://youtu.be/abc\nhttps://youtu.be/def\n"
	if string(data) != want {
		t.Fatalf("log contents = %q, want %q", data, want)
	}
}

func TestLoadIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("a\n\n  b  \r\n\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	known, err := New(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(known) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", known)
	}
	if _, ok := known["b"]; !ok {
		t.Fatalf("expected trimmed identifier")
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "log.txt"))
	if err := log.Record("   "); err == nil {
		t.Fatalf("expected error for empty identifier")
	}
	if err := log.Record("a\nb"); err == nil {
		t.Fatalf("expected error for multi-line identifier")
	}
}
