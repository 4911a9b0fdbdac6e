package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/media"
	"github.com/lvcoi/ytup/internal/printer"
	"github.com/lvcoi/ytup/internal/scheduler"
)

type transform struct {
	prefix string
	// apply writes dst from src and returns a detail for the status line.
	apply func(ctx context.Context, src, dst string) (string, error)
}

var transforms = map[string]transform{
	"crop":  {prefix: "cropped_", apply: cropVideo},
	"edges": {prefix: "edges_", apply: edgeVideo},
}

func cropVideo(ctx context.Context, src, dst string) (string, error) {
	rect, err := media.DetectCrop(ctx, src)
	if err != nil {
		return "", err
	}
	return "crop=" + rect, media.Crop(ctx, src, dst, rect)
}

func edgeVideo(ctx context.Context, src, dst string) (string, error) {
	return "edgedetect", media.Edges(ctx, src, dst)
}

// Transform applies the named ffmpeg transform to every video of the input
// folder (the upload folder unless given) and writes <prefix><name> into the
// output folder.
func Transform(ctx context.Context, mode string, args []string, stdout, stderr io.Writer) error {
	tf, ok := transforms[mode]
	if !ok {
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("unknown transform %q", mode))
	}
	cfg, rest, err := loadConfig(mode, args, stderr)
	if err != nil {
		return err
	}
	inDir := cfg.UploadDir
	switch len(rest) {
	case 0:
	case 1:
		inDir = rest[0]
	default:
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("%s takes at most one input folder", mode))
	}
	log := newLogger(stderr, cfg.LogLevel)
	p := printer.New(stdout, cfg.Quiet)

	if dep := media.CheckBinaries("ffmpeg")[0]; dep.Err != nil {
		return apperr.Wrap(apperr.CategoryDependency, fmt.Errorf("missing dependency: ffmpeg: %w", dep.Err))
	}
	names, err := scheduler.ListPending(inDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.CroppedDir, 0o755); err != nil {
		return apperr.Wrap(apperr.CategoryFilesystem, err)
	}

	var done, skipped, failed int
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		prefix := p.Prefix(i+1, len(names), name)
		dst := filepath.Join(cfg.CroppedDir, tf.prefix+name)

		detail, err := tf.apply(ctx, filepath.Join(inDir, name), dst)
		switch {
		case errors.Is(err, media.ErrNoCrop):
			skipped++
			p.ItemSkipped(prefix, "no crop detected")
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.Error().Err(err).Str("file", name).Str("mode", mode).Msg("transform failed")
			p.ItemResult(prefix, "", err)
		default:
			done++
			p.ItemResult(prefix, detail+" -> "+filepath.Base(dst), nil)
		}
	}
	p.Summary(len(names), done, failed, skipped)

	if failed > 0 {
		return apperr.MarkReported(fmt.Errorf("%d of %d files failed", failed, len(names)))
	}
	return nil
}
