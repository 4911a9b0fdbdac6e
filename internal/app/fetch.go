package app

import (
	"context"
	"errors"
	"io"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/dedup"
	"github.com/lvcoi/ytup/internal/downloader"
	"github.com/lvcoi/ytup/internal/httpx"
	"github.com/lvcoi/ytup/internal/printer"
)

// Fetch downloads each URL argument into the upload folder. YouTube links
// are fetched natively; anything else goes through yt-dlp.
func Fetch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, urls, err := loadConfig("fetch", args, stderr)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return apperr.Wrap(apperr.CategoryInvalidInput, errors.New("no url provided"))
	}
	log := newLogger(stderr, cfg.LogLevel)
	p := printer.New(stdout, cfg.Quiet)

	fetcher := downloader.New(downloader.Options{
		Dir:   cfg.UploadDir,
		Dedup: dedup.New(cfg.DedupLog),
		Extractors: []downloader.Extractor{
			downloader.NewYouTubeExtractor(httpx.NewTransferClient()),
			&downloader.YTDLPExtractor{},
		},
		Printer: p,
		Log:     log,
	})
	sum, err := fetcher.Fetch(ctx, urls)
	p.Summary(sum.Total, sum.Downloaded, sum.Failed, sum.Skipped)
	return err
}
