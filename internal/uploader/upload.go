// Package uploader publishes videos through the platform's resumable upload
// protocol and obtains the credentials and category list it needs.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/httpx"
	"github.com/lvcoi/ytup/internal/model"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com"
	DefaultChunkSize = 8 << 20
	chunkQuantum     = 256 << 10
	maxStalls        = 3
	statusResume     = 308
)

// ProgressFunc receives the committed byte count after every chunk.
type ProgressFunc func(sent, total int64)

// Publisher uploads one file with its metadata.
type Publisher interface {
	Publish(ctx context.Context, path string, meta model.Metadata, progress ProgressFunc) (model.Confirmation, error)
}

type Options struct {
	// HTTPClient must already be authorized.
	HTTPClient *http.Client
	BaseURL    string
	ChunkSize  int64
	// ChunkRetries bounds how many times one file's upload is resumed from
	// the committed offset after a failed chunk. Zero aborts the file on the
	// first failure.
	ChunkRetries  int
	Retry         httpx.RetryConfig
	PrivacyStatus string
	Log           zerolog.Logger
}

type Uploader struct {
	client  *http.Client
	baseURL string
	chunk   int64
	retries int
	retry   httpx.RetryConfig
	privacy string
	log     zerolog.Logger
}

func New(opts Options) *Uploader {
	u := &Uploader{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		chunk:   opts.ChunkSize,
		retries: opts.ChunkRetries,
		retry:   opts.Retry,
		privacy: opts.PrivacyStatus,
		log:     opts.Log,
	}
	if u.client == nil {
		u.client = httpx.NewTransferClient()
	}
	if u.baseURL == "" {
		u.baseURL = DefaultBaseURL
	}
	if u.chunk <= 0 {
		u.chunk = DefaultChunkSize
	}
	if r := u.chunk % chunkQuantum; r != 0 {
		u.chunk -= r
		if u.chunk == 0 {
			u.chunk = chunkQuantum
		}
	}
	if u.retries < 0 {
		u.retries = 0
	}
	if u.retry.InitialDelay <= 0 {
		u.retry = httpx.DefaultRetryConfig
	}
	if u.privacy == "" {
		u.privacy = "public"
	}
	return u
}

// Publish uploads path with meta and returns the platform's confirmation.
func (u *Uploader) Publish(ctx context.Context, path string, meta model.Metadata, progress ProgressFunc) (model.Confirmation, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Confirmation{}, apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return model.Confirmation{}, apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	size := info.Size()
	if size == 0 {
		return model.Confirmation{}, apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("%s is empty", filepath.Base(path)))
	}

	session, err := u.startSession(ctx, meta, size, contentType(path))
	if err != nil {
		return model.Confirmation{}, err
	}
	logger := u.log.With().Str("file", filepath.Base(path)).Int64("size", size).Logger()
	logger.Debug().Msg("upload session opened")

	var (
		offset   int64
		attempts int
		stalls   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return model.Confirmation{}, err
		}
		n := min(u.chunk, size-offset)
		reply, err := u.putChunk(ctx, session, io.NewSectionReader(f, offset, n), offset, n, size)
		for err != nil && isRetryable(err) && attempts < u.retries && ctx.Err() == nil {
			attempts++
			delay := u.retry.Backoff(attempts - 1)
			logger.Warn().Err(err).Int("attempt", attempts).Dur("backoff", delay).Msg("chunk failed, resuming")
			if serr := httpx.SleepWithContext(ctx, delay); serr != nil {
				return model.Confirmation{}, serr
			}
			reply, err = u.queryOffset(ctx, session, size)
		}
		if err != nil {
			return model.Confirmation{}, err
		}
		if reply.video != nil {
			if progress != nil {
				progress(size, size)
			}
			conf := confirmation(reply.video)
			logger.Debug().Str("video_id", conf.VideoID).Msg("upload complete")
			return conf, nil
		}

		if reply.committed <= offset {
			stalls++
			if stalls >= maxStalls {
				return model.Confirmation{}, apperr.Wrap(apperr.CategoryNetwork, fmt.Errorf("upload stalled at byte %d of %d", offset, size))
			}
		} else {
			stalls = 0
		}
		offset = reply.committed
		if offset > size {
			return model.Confirmation{}, apperr.Wrap(apperr.CategoryNetwork, fmt.Errorf("server committed %d bytes of a %d byte file", offset, size))
		}
		if progress != nil {
			progress(offset, size)
		}
	}
}

func (u *Uploader) startSession(ctx context.Context, meta model.Metadata, size int64, mediaType string) (string, error) {
	body, err := json.Marshal(u.videoResource(meta))
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryMetadata, err)
	}
	endpoint := u.baseURL + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.CategoryInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", mediaType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer drain(resp)
	if err := googleapi.CheckResponse(resp); err != nil {
		return "", classify(err)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", apperr.Wrap(apperr.CategoryNetwork, errors.New("upload session response has no Location header"))
	}
	return location, nil
}

func (u *Uploader) videoResource(meta model.Metadata) *youtube.Video {
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
}

type chunkReply struct {
	committed int64
	video     *youtube.Video
}

func (u *Uploader) putChunk(ctx context.Context, session string, body io.Reader, offset, n, size int64) (chunkReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, body)
	if err != nil {
		return chunkReply{}, apperr.Wrap(apperr.CategoryInvalidInput, err)
	}
	req.ContentLength = n
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, size))
	return u.send(req)
}

// queryOffset asks the session how many bytes it holds.
func (u *Uploader) queryOffset(ctx context.Context, session string, size int64) (chunkReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, http.NoBody)
	if err != nil {
		return chunkReply{}, apperr.Wrap(apperr.CategoryInvalidInput, err)
	}
	req.ContentLength = 0
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
	return u.send(req)
}

func (u *Uploader) send(req *http.Request) (chunkReply, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		return chunkReply{}, classify(err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var video youtube.Video
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			return chunkReply{}, apperr.Wrap(apperr.CategoryNetwork, fmt.Errorf("decode upload response: %w", err))
		}
		return chunkReply{video: &video}, nil
	case statusResume:
		committed, err := ParseRange(resp.Header.Get("Range"))
		if err != nil {
			return chunkReply{}, apperr.Wrap(apperr.CategoryNetwork, err)
		}
		return chunkReply{committed: committed}, nil
	}
	return chunkReply{}, classify(googleapi.CheckResponse(resp))
}

// ParseRange turns a resume reply's Range header ("bytes=0-N") into the next
// offset to send. An absent header means nothing was committed.
func ParseRange(header string) (int64, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("unexpected Range header %q", header)
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok || first != "0" {
		return 0, fmt.Errorf("unexpected Range header %q", header)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < 0 {
		return 0, fmt.Errorf("unexpected Range header %q", header)
	}
	return end + 1, nil
}

func confirmation(v *youtube.Video) model.Confirmation {
	conf := model.Confirmation{VideoID: v.Id}
	if v.Snippet != nil {
		conf.Title = v.Snippet.Title
	}
	if v.Status != nil {
		conf.PrivacyStatus = v.Status.PrivacyStatus
	}
	return conf
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// classify maps API and transport failures onto error categories.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return apperr.Wrap(apperr.CategoryAuth, err)
		case httpx.IsRetryableStatus(gerr.Code):
			return apperr.Wrap(apperr.CategoryNetwork, err)
		case gerr.Code >= 400 && gerr.Code < 500:
			return apperr.Wrap(apperr.CategoryInvalidInput, err)
		}
	}
	return apperr.Wrap(apperr.CategoryNetwork, err)
}

// isRetryable reports whether resuming from the committed offset can help.
func isRetryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return httpx.IsRetryableStatus(gerr.Code)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return apperr.CategoryOf(err) == apperr.CategoryNetwork
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
