// Package scheduler drives the publishing queue: it picks pending files at
// random, generates their metadata, uploads them, archives them and paces the
// uploads.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/db"
	"github.com/lvcoi/ytup/internal/fsx"
	"github.com/lvcoi/ytup/internal/model"
	"github.com/lvcoi/ytup/internal/printer"
	"github.com/lvcoi/ytup/internal/sanitize"
	"github.com/lvcoi/ytup/internal/uploader"
)

// MetadataSource produces publishable metadata for a file.
type MetadataSource interface {
	Generate(ctx context.Context, path string, categories model.CategoryMap) (model.Metadata, model.VideoFile, error)
}

// Store persists per-file queue state across runs.
type Store interface {
	Sync(names []string) error
	MarkState(name string, state model.FileState, detail string) error
	MarkPublished(name, videoID string) error
	Recoverable() (selected, published []db.FileRecord, err error)
	Get(name string) (db.FileRecord, error)
}

type Options struct {
	SourceDir  string
	DoneDir    string
	Categories model.CategoryMap
	Metadata   MetadataSource
	Publisher  uploader.Publisher
	// Store is optional.
	Store   Store
	Printer *printer.Printer
	Rand    *rand.Rand
	Sleeper Sleeper
	Pacer   *Pacer
	// Archive moves a published file into the done folder.
	Archive func(src, dir string) (string, error)
	Log     zerolog.Logger
}

// Result counts what happened to the files of one run.
type Result struct {
	Total    int
	Uploaded int
	Skipped  int
	Failed   int
}

type Scheduler struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options) *Scheduler {
	if opts.Printer == nil {
		opts.Printer = printer.New(io.Discard, true)
	}
	if opts.Sleeper == nil {
		opts.Sleeper = ContextSleeper{}
	}
	if opts.Archive == nil {
		opts.Archive = fsx.MoveInto
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Pacer == nil {
		opts.Pacer = NewPacer(120*time.Second, 1800*time.Second, opts.Rand)
	}
	return &Scheduler{opts: opts, log: opts.Log}
}

// ListPending returns the video files directly inside dir, sorted by name.
func ListPending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && sanitize.IsVideo(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Run processes every pending file once. It returns ctx.Err() when
// interrupted; per-file failures are counted, never returned.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	p := s.opts.Printer
	held := s.recoverPrevious()

	listed, err := ListPending(s.opts.SourceDir)
	if err != nil {
		return Result{}, err
	}
	pending := listed[:0:0]
	for _, name := range listed {
		if !held[name] {
			pending = append(pending, name)
		}
	}
	s.persist(func(st Store) error { return st.Sync(pending) })

	res := Result{Total: len(pending)}
	if res.Total == 0 {
		p.Notice(fmt.Sprintf("No videos in %s", s.opts.SourceDir))
		return res, nil
	}

	for index := 1; len(pending) > 0; index++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pick := s.opts.Rand.Intn(len(pending))
		name := pending[pick]
		pending[pick] = pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		outcome, err := s.process(ctx, p.Prefix(index, res.Total, name), name)
		switch outcome {
		case model.StateSkipped:
			res.Skipped++
		case model.StateFailed:
			res.Failed++
		case model.StateUploaded, model.StatePublished:
			res.Uploaded++
		}
		if err != nil {
			return res, err
		}
		if outcome != model.StateUploaded && outcome != model.StatePublished {
			continue
		}
		if len(pending) == 0 {
			break
		}
		delay := s.opts.Pacer.Next()
		p.ItemWaiting(p.Prefix(index, res.Total, name), delay)
		if err := s.opts.Sleeper.Sleep(ctx, delay); err != nil {
			return res, err
		}
	}
	return res, nil
}

// process runs one file through metadata, upload and archive. A non-nil
// error means the run was interrupted.
func (s *Scheduler) process(ctx context.Context, prefix, name string) (model.FileState, error) {
	p := s.opts.Printer
	path := filepath.Join(s.opts.SourceDir, name)
	logger := s.log.With().Str("file", name).Logger()
	s.mark(name, model.StateSelected, "")

	meta, _, err := s.opts.Metadata.Generate(ctx, path, s.opts.Categories)
	if err != nil {
		s.mark(name, model.StatePending, "interrupted")
		return model.StatePending, err
	}
	if meta.IsSentinel() {
		s.mark(name, model.StateSkipped, "metadata unavailable")
		p.ItemSkipped(prefix, "metadata unavailable")
		return model.StateSkipped, nil
	}
	logger.Debug().Str("title", meta.Title).Str("category", meta.CategoryID).Int("tags", len(meta.Tags)).Msg("metadata ready")

	conf, err := s.opts.Publisher.Publish(ctx, path, meta, func(sent, total int64) {
		p.Progress(prefix, sent, total)
	})
	if err != nil {
		if ctx.Err() != nil {
			s.mark(name, model.StatePending, "interrupted")
			return model.StatePending, ctx.Err()
		}
		s.mark(name, model.StateFailed, err.Error())
		logger.Error().Err(err).Str("category", string(apperr.CategoryOf(err))).Int("attempts", s.attempts(name)).Msg("upload failed")
		p.ItemResult(prefix, "", err)
		return model.StateFailed, nil
	}
	s.persist(func(st Store) error { return st.MarkPublished(name, conf.VideoID) })

	if _, err := s.opts.Archive(path, s.opts.DoneDir); err != nil {
		logger.Error().Err(err).Str("video_id", conf.VideoID).Msg("archive move failed")
		p.ItemResult(prefix, "", fmt.Errorf("uploaded as %s but not archived: %w", conf.VideoID, err))
		return model.StatePublished, nil
	}
	s.mark(name, model.StateUploaded, conf.VideoID)
	p.ItemResult(prefix, "uploaded as "+conf.VideoID, nil)
	return model.StateUploaded, nil
}

// recoverPrevious settles files a previous run left half done: confirmed
// uploads are archived without re-uploading, and interrupted ones go back to
// pending. It returns the published files that are still stuck in the source
// folder, which must not be uploaded again.
func (s *Scheduler) recoverPrevious() map[string]bool {
	held := map[string]bool{}
	if s.opts.Store == nil {
		return held
	}
	p := s.opts.Printer
	selected, published, err := s.opts.Store.Recoverable()
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read queue state")
		return held
	}
	for _, rec := range published {
		path := filepath.Join(s.opts.SourceDir, rec.Name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			s.mark(rec.Name, model.StateUploaded, rec.VideoID)
			continue
		}
		if _, err := s.opts.Archive(path, s.opts.DoneDir); err != nil {
			p.Warn(fmt.Sprintf("%s was published as %s but still cannot be archived: %v", rec.Name, rec.VideoID, err))
			held[rec.Name] = true
			continue
		}
		s.mark(rec.Name, model.StateUploaded, rec.VideoID)
		p.Notice(fmt.Sprintf("Archived %s (published as %s in an earlier run)", rec.Name, rec.VideoID))
	}
	for _, rec := range selected {
		p.Warn(fmt.Sprintf("%s was interrupted during an earlier run and may already be published; it will be uploaded again", rec.Name))
		s.mark(rec.Name, model.StatePending, "recovered")
	}
	return held
}

func (s *Scheduler) mark(name string, state model.FileState, detail string) {
	s.persist(func(st Store) error { return st.MarkState(name, state, detail) })
}

// attempts reports how often name has been selected across runs, or 0
// without a store.
func (s *Scheduler) attempts(name string) int {
	if s.opts.Store == nil {
		return 0
	}
	rec, err := s.opts.Store.Get(name)
	if err != nil {
		return 0
	}
	return rec.Attempts
}

func (s *Scheduler) persist(fn func(Store) error) {
	if s.opts.Store == nil {
		return
	}
	if err := fn(s.opts.Store); err != nil {
		s.log.Warn().Err(err).Msg("queue state not saved")
	}
}
