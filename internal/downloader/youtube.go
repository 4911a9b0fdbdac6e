package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/sanitize"
)

// YouTubeClient is the part of *youtube.Client the extractor needs.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTubeExtractor downloads the best progressive stream of a YouTube video.
type YouTubeExtractor struct {
	Client YouTubeClient
}

func NewYouTubeExtractor(httpClient *http.Client) *YouTubeExtractor {
	return &YouTubeExtractor{Client: &youtube.Client{HTTPClient: httpClient}}
}

func (e *YouTubeExtractor) Name() string {
	return "youtube"
}

func (e *YouTubeExtractor) Match(raw string) bool {
	return isYouTubeURL(raw)
}

func (e *YouTubeExtractor) Download(ctx context.Context, raw, dir string, progress ProgressFunc) (string, error) {
	video, err := e.Client.GetVideoContext(ctx, NormalizeYouTubeURL(raw))
	if err != nil {
		return "", wrapFetchError(err, "fetching metadata")
	}
	format, err := selectFormat(video)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("creating output directory: %w", err))
	}
	outputPath, err := nextAvailablePath(filepath.Join(dir, sanitize.Name(video.Title+"."+mimeToExt(format.MimeType))))
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, err)
	}

	stream, size, err := e.Client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", wrapFetchError(err, "starting stream")
	}
	defer stream.Close()

	// Write next to the target and rename at the end, so an interrupted
	// download never leaves a truncated video in the source folder.
	part, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".part-*")
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("opening output file: %w", err))
	}
	partName := part.Name()
	defer os.Remove(partName)

	var w io.Writer = part
	if progress != nil {
		w = io.MultiWriter(part, &progressWriter{size: size, report: progress})
	}
	if _, err := copyWithContext(ctx, w, stream); err != nil {
		part.Close()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", wrapFetchError(err, "download failed")
	}
	if err := part.Close(); err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	if err := os.Rename(partName, outputPath); err != nil {
		return "", apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	return outputPath, nil
}

func wrapFetchError(err error, action string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", action, err)
	var status youtube.ErrUnexpectedStatusCode
	switch {
	case isRestrictedAccess(err):
		return apperr.Wrap(apperr.CategoryInvalidInput, wrapped)
	case errors.As(err, &status) && int(status) == http.StatusForbidden:
		return apperr.Wrap(apperr.CategoryAuth, wrapped)
	}
	return apperr.Wrap(apperr.CategoryNetwork, wrapped)
}

// progressWriter counts bytes passing through and reports the running total
// at most every 100ms, plus once when the expected size is reached.
type progressWriter struct {
	size   int64
	done   int64
	last   time.Time
	report ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	now := time.Now()
	if now.Sub(p.last) >= 100*time.Millisecond || (p.size > 0 && p.done >= p.size) {
		p.last = now
		p.report(p.done, p.size)
	}
	return len(b), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
		return r.r.Read(p)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &contextReader{ctx: ctx, r: src})
}
