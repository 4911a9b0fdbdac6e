package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/httpx"
	"github.com/lvcoi/ytup/internal/model"
)

// fakeSession emulates the resumable upload endpoint.
type fakeSession struct {
	t    *testing.T
	srv  *httptest.Server
	size int64

	mu       sync.Mutex
	received bytes.Buffer
	init     map[string]any
	ranges   []string
	// commitLimit caps how many bytes of one chunk are kept, 0 keeps all.
	commitLimit int
	// failPut lists PUT numbers (1-based) answered with 503.
	failPut map[int]bool
	puts    int
	queries int
}

func newFakeSession(t *testing.T, size int64) *fakeSession {
	t.Helper()
	sess := &fakeSession{t: t, size: size, failPut: map[int]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/youtube/v3/videos", sess.handleInit)
	mux.HandleFunc("/session/1", sess.handlePut)
	sess.srv = httptest.NewServer(mux)
	t.Cleanup(sess.srv.Close)
	return sess
}

func (sess *fakeSession) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Query().Get("uploadType") != "resumable" {
		http.Error(w, "bad init", http.StatusBadRequest)
		return
	}
	if got := r.Header.Get("X-Upload-Content-Length"); got != fmt.Sprint(sess.size) {
		http.Error(w, "bad length "+got, http.StatusBadRequest)
		return
	}
	sess.mu.Lock()
	json.NewDecoder(r.Body).Decode(&sess.init)
	sess.mu.Unlock()
	w.Header().Set("Location", sess.srv.URL+"/session/1")
	w.WriteHeader(http.StatusOK)
}

func (sess *fakeSession) handlePut(w http.ResponseWriter, r *http.Request) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cr := r.Header.Get("Content-Range")
	if strings.HasPrefix(cr, "bytes */") {
		sess.queries++
		sess.resume(w)
		return
	}
	sess.puts++
	sess.ranges = append(sess.ranges, cr)
	body, _ := readAll(r)
	if sess.failPut[sess.puts] {
		http.Error(w, "backend error", http.StatusServiceUnavailable)
		return
	}
	var start, end, total int64
	if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total); err != nil || start != int64(sess.received.Len()) || total != sess.size {
		http.Error(w, "bad range "+cr, http.StatusBadRequest)
		return
	}
	if sess.commitLimit > 0 && len(body) > sess.commitLimit {
		body = body[:sess.commitLimit]
	}
	sess.received.Write(body)
	if int64(sess.received.Len()) == sess.size {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		video := map[string]any{
			"id":      "vid123",
			"snippet": map[string]any{"title": sess.init["snippet"].(map[string]any)["title"]},
			"status":  map[string]any{"privacyStatus": "public"},
		}
		json.NewEncoder(w).Encode(video)
		return
	}
	sess.resume(w)
}

func (sess *fakeSession) resume(w http.ResponseWriter) {
	if n := sess.received.Len(); n > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	}
	w.WriteHeader(statusResume)
}

func readAll(r *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r.Body)
	return buf.Bytes(), err
}

func writeVideo(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path, data
}

func testMeta() model.Metadata {
	return model.Metadata{Title: "Epic fail", Description: "desc", Tags: []string{"fail"}, CategoryID: "23"}
}

func newTestUploader(baseURL string, retries int) *Uploader {
	return New(Options{
		HTTPClient:   http.DefaultClient,
		BaseURL:      baseURL,
		ChunkSize:    chunkQuantum,
		ChunkRetries: retries,
		Retry:        httpx.RetryConfig{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Log:          zerolog.Nop(),
	})
}

func TestPublishUploadsInChunks(t *testing.T) {
	size := 2*chunkQuantum + 100*1024
	path, data := writeVideo(t, size)
	sess := newFakeSession(t, int64(size))

	var progress []int64
	conf, err := newTestUploader(sess.srv.URL, 0).Publish(context.Background(), path, testMeta(), func(sent, total int64) {
		if total != int64(size) {
			t.Errorf("total = %d, want %d", total, size)
		}
		progress = append(progress, sent)
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if conf.VideoID != "vid123" || conf.Title != "Epic fail" || conf.PrivacyStatus != "public" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if !bytes.Equal(sess.received.Bytes(), data) {
		t.Fatalf("server received %d bytes that differ from the file", sess.received.Len())
	}
	want := []int64{chunkQuantum, 2 * chunkQuantum, int64(size)}
	if fmt.Sprint(progress) != fmt.Sprint(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	wantRanges := []string{
		fmt.Sprintf("bytes 0-%d/%d", chunkQuantum-1, size),
		fmt.Sprintf("bytes %d-%d/%d", chunkQuantum, 2*chunkQuantum-1, size),
		fmt.Sprintf("bytes %d-%d/%d", 2*chunkQuantum, size-1, size),
	}
	if fmt.Sprint(sess.ranges) != fmt.Sprint(wantRanges) {
		t.Fatalf("ranges = %v, want %v", sess.ranges, wantRanges)
	}
}

func TestPublishRequestBody(t *testing.T) {
	path, _ := writeVideo(t, 1000)
	sess := newFakeSession(t, 1000)

	if _, err := newTestUploader(sess.srv.URL, 0).Publish(context.Background(), path, testMeta(), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	status, ok := sess.init["status"].(map[string]any)
	if !ok {
		t.Fatalf("missing status in %v", sess.init)
	}
	if status["privacyStatus"] != "public" {
		t.Fatalf("privacyStatus = %v", status["privacyStatus"])
	}
	if v, ok := status["selfDeclaredMadeForKids"]; !ok || v != false {
		t.Fatalf("selfDeclaredMadeForKids must be sent as false, got %v (present %v)", v, ok)
	}
	snippet := sess.init["snippet"].(map[string]any)
	if snippet["categoryId"] != "23" || snippet["title"] != "Epic fail" || snippet["description"] != "desc" {
		t.Fatalf("unexpected snippet %v", snippet)
	}
}

func TestPublishResumesFromCommittedRange(t *testing.T) {
	size := 2 * chunkQuantum
	path, data := writeVideo(t, size)
	sess := newFakeSession(t, int64(size))
	sess.commitLimit = 100_000

	if _, err := newTestUploader(sess.srv.URL, 0).Publish(context.Background(), path, testMeta(), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !bytes.Equal(sess.received.Bytes(), data) {
		t.Fatalf("content mismatch after partial commits")
	}
	if !strings.HasPrefix(sess.ranges[1], "bytes 100000-") {
		t.Fatalf("second chunk should start at the committed offset, got %q", sess.ranges[1])
	}
}

func TestPublishRetriesFromCommittedOffset(t *testing.T) {
	size := 2*chunkQuantum + 10
	path, data := writeVideo(t, size)
	sess := newFakeSession(t, int64(size))
	sess.failPut[2] = true

	if _, err := newTestUploader(sess.srv.URL, 2).Publish(context.Background(), path, testMeta(), nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sess.queries != 1 {
		t.Fatalf("expected one offset query, got %d", sess.queries)
	}
	if !bytes.Equal(sess.received.Bytes(), data) {
		t.Fatalf("content mismatch after retry")
	}
}

func TestPublishWithoutRetriesAbortsOnFailure(t *testing.T) {
	path, _ := writeVideo(t, 1000)
	sess := newFakeSession(t, 1000)
	sess.failPut[1] = true

	_, err := newTestUploader(sess.srv.URL, 0).Publish(context.Background(), path, testMeta(), nil)
	if apperr.CategoryOf(err) != apperr.CategoryNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if sess.puts != 1 || sess.queries != 0 {
		t.Fatalf("expected a single attempt, got %d puts and %d queries", sess.puts, sess.queries)
	}
}

func TestPublishStallAborts(t *testing.T) {
	path, _ := writeVideo(t, 1000)
	var puts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", "http://"+r.Host+"/session")
			return
		}
		puts++
		w.WriteHeader(statusResume)
	}))
	defer srv.Close()

	_, err := newTestUploader(srv.URL, 0).Publish(context.Background(), path, testMeta(), nil)
	if err == nil || !strings.Contains(err.Error(), "stalled") {
		t.Fatalf("expected stall error, got %v", err)
	}
	if puts != maxStalls {
		t.Fatalf("expected %d attempts before giving up, got %d", maxStalls, puts)
	}
}

func TestPublishSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Category
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.CategoryAuth},
		{"quota", http.StatusForbidden, apperr.CategoryAuth},
		{"bad request", http.StatusBadRequest, apperr.CategoryInvalidInput},
		{"server", http.StatusInternalServerError, apperr.CategoryNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _ := writeVideo(t, 100)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`, tt.status)
			}))
			defer srv.Close()

			_, err := newTestUploader(srv.URL, 0).Publish(context.Background(), path, testMeta(), nil)
			if got := apperr.CategoryOf(err); got != tt.want {
				t.Fatalf("category = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestPublishMissingLocation(t *testing.T) {
	path, _ := writeVideo(t, 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	if _, err := newTestUploader(srv.URL, 0).Publish(context.Background(), path, testMeta(), nil); err == nil {
		t.Fatalf("expected error without session location")
	}
}

func TestPublishRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")
	os.WriteFile(path, nil, 0o644)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	_, err := newTestUploader(srv.URL, 0).Publish(context.Background(), path, testMeta(), nil)
	if apperr.CategoryOf(err) != apperr.CategoryInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("empty file must not open a session")
	}
}

func TestPublishMissingFile(t *testing.T) {
	_, err := newTestUploader("http://127.0.0.1:1", 0).Publish(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), testMeta(), nil)
	if apperr.CategoryOf(err) != apperr.CategoryFilesystem {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"bytes=0-0", 1, false},
		{"bytes=0-262143", 262144, false},
		{"bytes=5-10", 0, true},
		{"items=0-10", 0, true},
		{"bytes=0-x", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRange(%q) = %d, %v; want %d, err %v", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestNewRoundsChunkSize(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, DefaultChunkSize},
		{chunkQuantum + 1, chunkQuantum},
		{1000, chunkQuantum},
		{3 * chunkQuantum, 3 * chunkQuantum},
	}
	for _, tt := range tests {
		if got := New(Options{ChunkSize: tt.in}).chunk; got != tt.want {
			t.Errorf("chunk for %d = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a.MP4"); got != "video/mp4" {
		t.Fatalf("contentType(a.MP4) = %q", got)
	}
	if got := contentType("a.MKV"); got != "video/x-matroska" {
		t.Fatalf("contentType(a.MKV) = %q", got)
	}
	if got := contentType("a.unknownext"); got != "application/octet-stream" {
		t.Fatalf("contentType(a.unknownext) = %q", got)
	}
}
