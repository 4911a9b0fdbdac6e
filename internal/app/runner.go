package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/db"
	"github.com/lvcoi/ytup/internal/httpx"
	"github.com/lvcoi/ytup/internal/media"
	"github.com/lvcoi/ytup/internal/metadata"
	"github.com/lvcoi/ytup/internal/model"
	"github.com/lvcoi/ytup/internal/openai"
	"github.com/lvcoi/ytup/internal/printer"
	"github.com/lvcoi/ytup/internal/sanitize"
	"github.com/lvcoi/ytup/internal/scheduler"
	"github.com/lvcoi/ytup/internal/transcribe"
	"github.com/lvcoi/ytup/internal/uploader"
)

// Run publishes the upload folder: sanitize names, authorize, load the
// category list, then hand the queue to the scheduler.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, rest, err := loadConfig("run", args, stderr)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("run takes no arguments, got %q", rest))
	}
	log := newLogger(stderr, cfg.LogLevel)
	p := printer.New(stdout, cfg.Quiet)

	store, err := db.Open(cfg.StateDB)
	if err != nil {
		return apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	defer store.Close()

	// Files already published keep their names so recovery can find them.
	keep := map[string]bool{}
	if _, published, err := store.Recoverable(); err != nil {
		log.Warn().Err(err).Msg("could not read queue state before renaming")
	} else {
		for _, rec := range published {
			keep[rec.Name] = true
		}
	}
	renames, err := sanitize.RenameFolder(cfg.UploadDir, cfg.RenameLog, keep)
	for _, r := range renames {
		p.Notice(fmt.Sprintf("Renamed %s to %s", r.Old, r.New))
	}
	if err != nil {
		// Files keep their current names; the scheduler reports a missing folder.
		p.Warn(fmt.Sprintf("renaming: %v", err))
	}

	runID := db.NewRunID()
	if err := store.BeginRun(runID); err != nil {
		return apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	log = log.With().Str("run", runID).Logger()

	authorized, err := uploader.Authorize(ctx, uploader.AuthOptions{
		SecretsFile: cfg.ClientSecretsFile,
		TokenFile:   cfg.TokenFile,
		HTTPClient:  httpx.NewTransferClient(),
		Prompt:      stderr,
		Log:         log,
	})
	if err != nil {
		return err
	}

	catCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	categories, err := uploader.FetchCategories(catCtx, authorized, "", cfg.RegionCode)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Warn(fmt.Sprintf("category list unavailable, using fallback: %v", err))
	}
	log.Debug().Int("categories", len(categories)).Str("region", cfg.RegionCode).Msg("categories loaded")

	ai := openai.New(openai.Options{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.OpenAIModel,
		TranscribeModel: cfg.OpenAITranscribeModel,
		HTTPClient:      httpx.NewAPIClient(cfg.Timeout),
	})
	var transcriber metadata.Transcriber
	if !cfg.SkipTranscribe {
		transcriber = transcribe.New(cfg.CacheDir, ai, log)
	}
	generator := metadata.NewGenerator(metadata.Options{
		Prober:             media.FFProbe{Timeout: cfg.Timeout},
		Transcriber:        transcriber,
		Completer:          ai,
		FallbackCategoryID: cfg.FallbackCategoryID,
		Log:                log,
	})
	publisher := uploader.New(uploader.Options{
		HTTPClient:   authorized,
		ChunkSize:    cfg.ChunkSize,
		ChunkRetries: cfg.ChunkRetries,
		Log:          log,
	})

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	sched := scheduler.New(scheduler.Options{
		SourceDir:  cfg.UploadDir,
		DoneDir:    cfg.DoneDir,
		Categories: categories,
		Metadata:   generator,
		Publisher:  publisher,
		Store:      store,
		Printer:    p,
		Rand:       rng,
		Pacer:      scheduler.NewPacer(cfg.MinDelay, cfg.MaxDelay, rng),
		Log:        log,
	})

	res, runErr := sched.Run(ctx)
	p.Summary(res.Total, res.Uploaded, res.Failed, res.Skipped)
	stats := db.RunStats{Uploaded: res.Uploaded, Skipped: res.Skipped, Failed: res.Failed}
	if err := store.FinishRun(runID, stats); err != nil {
		log.Warn().Err(err).Msg("recording run totals")
	}
	logQueue(log, store)
	log.Info().Int("uploaded", res.Uploaded).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("run finished")

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			p.Warn("interrupted, remaining files stay in the upload folder")
			return apperr.MarkReported(runErr)
		}
		return runErr
	}
	return nil
}

// logQueue records how many tracked files are in each state after a run.
func logQueue(log zerolog.Logger, store *db.DB) {
	counts, err := store.CountByState()
	if err != nil {
		log.Warn().Err(err).Msg("counting queue states")
		return
	}
	ev := log.Info()
	for _, state := range []model.FileState{model.StatePending, model.StateUploaded, model.StateSkipped, model.StateFailed, model.StatePublished} {
		ev = ev.Int(string(state), counts[state])
	}
	ev.Msg("queue state")
}
