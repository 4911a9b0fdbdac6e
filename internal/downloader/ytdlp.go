package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lvcoi/ytup/internal/apperr"
)

// YTDLPFormat prefers a single MP4 file and falls back to the best single file.
const YTDLPFormat = "best[ext=mp4]/best"

// YTDLPExtractor downloads any other site through the yt-dlp binary.
type YTDLPExtractor struct {
	// Binary defaults to "yt-dlp" resolved on PATH.
	Binary string
}

func (e *YTDLPExtractor) Name() string {
	return "yt-dlp"
}

func (e *YTDLPExtractor) Match(raw string) bool {
	return validateInputURL(raw) == nil
}

func (e *YTDLPExtractor) binary() string {
	if e.Binary != "" {
		return e.Binary
	}
	return "yt-dlp"
}

func (e *YTDLPExtractor) Download(ctx context.Context, raw, dir string, _ ProgressFunc) (string, error) {
	bin, err := exec.LookPath(e.binary())
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryDependency, fmt.Errorf("missing dependency: %s is not installed or not on PATH", e.binary()))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("creating output directory: %w", err))
	}

	args := []string{
		"-f", YTDLPFormat,
		"--no-playlist",
		"--no-progress",
		"--print", "after_move:filepath",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
		raw,
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := lastLine(stderr.String())
		wrapped := fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
		if isRestrictedAccess(errors.New(msg)) || strings.Contains(msg, "Unsupported URL") {
			return "", apperr.Wrap(apperr.CategoryInvalidInput, wrapped)
		}
		return "", apperr.Wrap(apperr.CategoryNetwork, wrapped)
	}

	path := lastLine(stdout.String())
	if path == "" {
		return "", apperr.Wrap(apperr.CategoryUnknown, errors.New("yt-dlp did not report an output file"))
	}
	if _, err := os.Stat(path); err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("yt-dlp output: %w", err))
	}
	return path, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
