// Package downloader fetches source videos into the upload folder and keeps
// the dedup log so no URL is downloaded twice.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/dedup"
	"github.com/lvcoi/ytup/internal/printer"
)

// ProgressFunc receives the bytes written so far and the expected total,
// which is 0 when unknown.
type ProgressFunc func(done, total int64)

type Extractor interface {
	Name() string
	Match(url string) bool
	// Download stores the video in dir and returns the written file.
	Download(ctx context.Context, url, dir string, progress ProgressFunc) (string, error)
}

type Options struct {
	Dir        string
	Dedup      *dedup.Log
	Extractors []Extractor
	Printer    *printer.Printer
	Log        zerolog.Logger
}

type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
}

type Fetcher struct {
	opts Options
}

func New(opts Options) *Fetcher {
	return &Fetcher{opts: opts}
}

// Fetch downloads every URL not yet in the dedup log, in order. Failures are
// reported and do not stop the batch; the returned error is the most severe
// one seen, already shown to the user.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) (Summary, error) {
	p := f.opts.Printer
	known, err := f.opts.Dedup.Load()
	if err != nil {
		return Summary{}, apperr.Wrap(apperr.CategoryFilesystem, err)
	}

	sum := Summary{Total: len(urls)}
	var worst error
	for i, raw := range urls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		raw = strings.TrimSpace(raw)
		prefix := p.Prefix(i+1, len(urls), raw)

		if _, ok := known[raw]; ok {
			sum.Skipped++
			p.ItemSkipped(prefix, "already downloaded")
			continue
		}

		path, err := f.fetchOne(ctx, raw, prefix)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			worst = worse(worst, err)
			f.opts.Log.Error().Err(err).Str("url", raw).Str("category", string(apperr.CategoryOf(err))).Msg("download failed")
			p.ItemResult(prefix, "", err)
			continue
		}

		if err := f.opts.Dedup.Record(raw); err != nil {
			// The file is on disk; only the log entry is missing.
			p.Warn(fmt.Sprintf("downloaded %s but could not record it: %v", raw, err))
		}
		known[raw] = struct{}{}
		sum.Downloaded++
		p.ItemResult(prefix, filepath.Base(path), nil)
	}

	if worst != nil {
		return sum, apperr.MarkReported(worst)
	}
	return sum, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, raw, prefix string) (string, error) {
	if err := validateInputURL(raw); err != nil {
		return "", err
	}
	for _, ex := range f.opts.Extractors {
		if !ex.Match(raw) {
			continue
		}
		f.opts.Log.Debug().Str("url", raw).Str("extractor", ex.Name()).Msg("downloading")
		return ex.Download(ctx, raw, f.opts.Dir, func(done, total int64) {
			f.opts.Printer.Progress(prefix, done, total)
		})
	}
	return "", apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("no extractor for %s", raw))
}

// severity orders categories for the batch exit status.
var severity = map[apperr.Category]int{
	apperr.CategoryUnknown:      1,
	apperr.CategoryInvalidInput: 2,
	apperr.CategoryNetwork:      3,
	apperr.CategoryFilesystem:   4,
	apperr.CategoryDependency:   5,
	apperr.CategoryAuth:         6,
}

func worse(current, next error) error {
	if current == nil {
		return next
	}
	if next == nil || errors.Is(next, current) {
		return current
	}
	if severity[apperr.CategoryOf(next)] > severity[apperr.CategoryOf(current)] {
		return next
	}
	return current
}
