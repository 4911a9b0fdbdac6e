//go:build unix

package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeBinaries(t *testing.T, names ...string) string {
	t.Helper()
	bin := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return bin
}

func TestDoctor(t *testing.T) {
	tests := []struct {
		name     string
		present  []string
		wantCode int
		wantFail []string
	}{
		{name: "all present", present: []string{"ffmpeg", "ffprobe", "yt-dlp"}, wantCode: 0},
		{name: "yt-dlp missing", present: []string{"ffmpeg", "ffprobe"}, wantCode: 6, wantFail: []string{"yt-dlp"}},
		{name: "nothing installed", wantCode: 6, wantFail: []string{"ffmpeg", "ffprobe", "yt-dlp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PATH", fakeBinaries(t, tt.present...))
			code, out, errOut := runMain(t, append([]string{"doctor"}, isolatedArgs(t.TempDir())...)...)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stdout %q)", code, tt.wantCode, out)
			}
			if errOut != "" {
				t.Fatalf("failures are reported on stdout only, stderr %q", errOut)
			}
			for _, name := range tt.wantFail {
				if !strings.Contains(out, name) || !strings.Contains(out, "FAIL") {
					t.Fatalf("expected FAIL for %s in %q", name, out)
				}
			}
			if !strings.Contains(out, "client secrets") {
				t.Fatalf("expected a warning about missing client secrets, got %q", out)
			}
		})
	}
}

func TestTransformNeedsFFmpeg(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	code, _, errOut := runMain(t, append([]string{"crop"}, isolatedArgs(t.TempDir())...)...)
	if code != 6 {
		t.Fatalf("exit code = %d, want 6 (stderr %q)", code, errOut)
	}
	if !strings.Contains(errOut, "ffmpeg") {
		t.Fatalf("stderr should name ffmpeg, got %q", errOut)
	}
}

func TestTransformEmptyFolder(t *testing.T) {
	t.Setenv("PATH", fakeBinaries(t, "ffmpeg"))
	dir := t.TempDir()
	input := filepath.Join(dir, "in")
	if err := os.MkdirAll(input, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(input, "notes.txt"), []byte("not a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, mode := range []string{"crop", "edges"} {
		code, out, errOut := runMain(t, append(append([]string{mode}, isolatedArgs(dir)...), input)...)
		if code != 0 {
			t.Fatalf("%s: exit code = %d (stderr %q)", mode, code, errOut)
		}
		if !strings.Contains(out, "TOTAL 0") {
			t.Fatalf("%s: expected an empty summary, got %q", mode, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "cropped")); err != nil {
		t.Fatalf("output folder not created: %v", err)
	}
}

func TestTransformMissingInput(t *testing.T) {
	t.Setenv("PATH", fakeBinaries(t, "ffmpeg"))
	dir := t.TempDir()
	code, _, _ := runMain(t, append(append([]string{"edges"}, isolatedArgs(dir)...), filepath.Join(dir, "nope"))...)
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}
