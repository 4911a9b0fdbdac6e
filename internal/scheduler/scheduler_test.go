package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/db"
	"github.com/lvcoi/ytup/internal/model"
	"github.com/lvcoi/ytup/internal/printer"
	"github.com/lvcoi/ytup/internal/uploader"
)

// events records the order of pipeline actions across fakes.
type events []string

func (e *events) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

type fakeMetadata struct {
	log      *events
	sentinel map[string]bool
	err      error
}

func (f *fakeMetadata) Generate(ctx context.Context, path string, _ model.CategoryMap) (model.Metadata, model.VideoFile, error) {
	name := filepath.Base(path)
	f.log.add("meta:%s", name)
	if f.err != nil {
		return model.Metadata{}, model.VideoFile{}, f.err
	}
	if f.sentinel[name] {
		return model.Sentinel("22"), model.VideoFile{Path: path}, nil
	}
	return model.Metadata{Title: "Title " + name, Tags: []string{"t"}, CategoryID: "22"}, model.VideoFile{Path: path}, nil
}

type fakePublisher struct {
	log  *events
	fail map[string]bool
}

func (f *fakePublisher) Publish(ctx context.Context, path string, meta model.Metadata, progress uploader.ProgressFunc) (model.Confirmation, error) {
	name := filepath.Base(path)
	if f.fail[name] {
		f.log.add("fail:%s", name)
		return model.Confirmation{}, errors.New("backend error")
	}
	if progress != nil {
		progress(10, 10)
	}
	f.log.add("publish:%s", name)
	return model.Confirmation{VideoID: "id-" + name, Title: meta.Title, PrivacyStatus: "public"}, nil
}

type fakeSleeper struct {
	log    *events
	delays []time.Duration
	cancel context.CancelFunc
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.log.add("sleep")
	f.delays = append(f.delays, d)
	if f.cancel != nil {
		f.cancel()
		return ctx.Err()
	}
	return nil
}

type fixture struct {
	src, done string
	log       *events
	meta      *fakeMetadata
	pub       *fakePublisher
	sleeper   *fakeSleeper
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		src:  filepath.Join(root, "upload"),
		done: filepath.Join(root, "done"),
		log:  &events{},
	}
	if err := os.MkdirAll(f.src, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(f.src, name), []byte("video "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	f.meta = &fakeMetadata{log: f.log, sentinel: map[string]bool{}}
	f.pub = &fakePublisher{log: f.log, fail: map[string]bool{}}
	f.sleeper = &fakeSleeper{log: f.log}
	return f
}

func (f *fixture) options(seed int64) Options {
	rng := rand.New(rand.NewSource(seed))
	return Options{
		SourceDir:  f.src,
		DoneDir:    f.done,
		Categories: model.CategoryMap{"22": "People & Blogs"},
		Metadata:   f.meta,
		Publisher:  f.pub,
		Printer:    printer.New(io.Discard, true),
		Rand:       rng,
		Sleeper:    f.sleeper,
		Pacer:      NewPacer(120*time.Second, 1800*time.Second, rng),
		Log:        zerolog.Nop(),
	}
}

func (f *fixture) selected() []string {
	var out []string
	for _, e := range *f.log {
		if name, ok := strings.CutPrefix(e, "meta:"); ok {
			out = append(out, name)
		}
	}
	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestPacerBounds(t *testing.T) {
	p := NewPacer(120*time.Second, 1800*time.Second, rand.New(rand.NewSource(7)))
	for i := 0; i < 5000; i++ {
		d := p.Next()
		if d < 120*time.Second || d > 1800*time.Second {
			t.Fatalf("delay %s out of bounds", d)
		}
		if d%time.Second != 0 {
			t.Fatalf("delay %s is not a whole number of seconds", d)
		}
	}
}

func TestPacerCoversBothEnds(t *testing.T) {
	p := NewPacer(time.Second, 3*time.Second, rand.New(rand.NewSource(3)))
	seen := map[time.Duration]bool{}
	for i := 0; i < 300; i++ {
		seen[p.Next()] = true
	}
	for _, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		if !seen[want] {
			t.Fatalf("delay %s never drawn: %v", want, seen)
		}
	}
}

func TestPacerFixedDelay(t *testing.T) {
	p := NewPacer(5*time.Second, 5*time.Second, rand.New(rand.NewSource(1)))
	if got := p.Next(); got != 5*time.Second {
		t.Fatalf("Next() = %s", got)
	}
}

func TestRunUploadsEveryFileOnce(t *testing.T) {
	names := []string{"a.mp4", "b.mp4", "c.mov", "d.mkv", "e.webm"}
	f := newFixture(t, names...)
	os.WriteFile(filepath.Join(f.src, "notes.txt"), []byte("x"), 0o644)

	res, err := New(f.options(42)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != (Result{Total: 5, Uploaded: 5}) {
		t.Fatalf("unexpected result %+v", res)
	}
	sel := f.selected()
	if len(sel) != len(names) {
		t.Fatalf("expected %d selections, got %v", len(names), sel)
	}
	sorted := append([]string(nil), sel...)
	sort.Strings(sorted)
	if fmt.Sprint(sorted) != fmt.Sprint(names) {
		t.Fatalf("each file must be selected exactly once, got %v", sel)
	}
	if got := listDir(t, f.done); fmt.Sprint(got) != fmt.Sprint(names) {
		t.Fatalf("done dir = %v", got)
	}
	if got := listDir(t, f.src); fmt.Sprint(got) != "[notes.txt]" {
		t.Fatalf("source dir = %v", got)
	}
	if len(f.sleeper.delays) != len(names)-1 {
		t.Fatalf("expected %d waits, got %d", len(names)-1, len(f.sleeper.delays))
	}
	if last := (*f.log)[len(*f.log)-1]; !strings.HasPrefix(last, "publish:") {
		t.Fatalf("the final upload must not wait, last event %q", last)
	}
}

func TestRunSelectionIsSeeded(t *testing.T) {
	names := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4", "f.mp4"}
	order := func(seed int64) []string {
		f := newFixture(t, names...)
		if _, err := New(f.options(seed)).Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return f.selected()
	}
	first, second := order(99), order(99)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("same seed gave different orders: %v vs %v", first, second)
	}
}

func TestRunSkipsSentinelWithoutWaiting(t *testing.T) {
	f := newFixture(t, "only.mp4")
	f.meta.sentinel["only.mp4"] = true

	res, err := New(f.options(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != (Result{Total: 1, Skipped: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if fmt.Sprint(*f.log) != "[meta:only.mp4]" {
		t.Fatalf("sentinel must not be published or paced, events %v", *f.log)
	}
	if got := listDir(t, f.src); fmt.Sprint(got) != "[only.mp4]" {
		t.Fatalf("skipped file must stay in the source folder, got %v", got)
	}
}

func TestRunWaitsOnlyAfterSuccessfulUploads(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4")
	f.meta.sentinel["b.mp4"] = true
	f.pub.fail["d.mp4"] = true

	res, err := New(f.options(5)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != (Result{Total: 5, Uploaded: 3, Skipped: 1, Failed: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	log := *f.log
	for i, e := range log {
		if e == "sleep" && (i == 0 || !strings.HasPrefix(log[i-1], "publish:")) {
			t.Fatalf("wait not preceded by a successful upload: %v", log)
		}
	}
	if got := listDir(t, f.src); fmt.Sprint(got) != "[b.mp4 d.mp4]" {
		t.Fatalf("skipped and failed files stay in the source folder, got %v", got)
	}
}

func TestRunPacesWhenArchiveFails(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	opts := f.options(2)
	opts.Archive = func(src, dir string) (string, error) {
		return "", errors.New("disk full")
	}

	res, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Uploaded != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.sleeper.delays) != 1 {
		t.Fatalf("expected one wait, got %d", len(f.sleeper.delays))
	}
}

func TestRunStopsWhenInterrupted(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4", "c.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sleeper.cancel = cancel

	res, err := New(f.options(8)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Uploaded != 1 || len(f.selected()) != 1 {
		t.Fatalf("no file may be selected after interruption: %+v, %v", res, *f.log)
	}
}

func TestRunEmptyFolder(t *testing.T) {
	f := newFixture(t)
	res, err := New(f.options(1)).Run(context.Background())
	if err != nil || res.Total != 0 {
		t.Fatalf("Run on empty folder = %+v, %v", res, err)
	}
}

func TestRunMissingFolder(t *testing.T) {
	f := newFixture(t)
	opts := f.options(1)
	opts.SourceDir = filepath.Join(f.src, "missing")
	if _, err := New(opts).Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing source folder")
	}
}

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunRecordsStateAndRecovers(t *testing.T) {
	f := newFixture(t, "done-before.mp4", "crashed.mp4", "fresh.mp4")
	store := openStore(t)
	if err := store.Sync([]string{"done-before.mp4", "crashed.mp4"}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	store.MarkState("done-before.mp4", model.StateSelected, "")
	store.MarkPublished("done-before.mp4", "old-id")
	store.MarkState("crashed.mp4", model.StateSelected, "")

	opts := f.options(3)
	opts.Store = store
	res, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Total != 2 || res.Uploaded != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, e := range *f.log {
		if e == "publish:done-before.mp4" {
			t.Fatalf("a confirmed upload must not be published again")
		}
	}
	if got := listDir(t, f.done); fmt.Sprint(got) != "[crashed.mp4 done-before.mp4 fresh.mp4]" {
		t.Fatalf("done dir = %v", got)
	}
	for name, wantID := range map[string]string{
		"done-before.mp4": "old-id",
		"crashed.mp4":     "id-crashed.mp4",
		"fresh.mp4":       "id-fresh.mp4",
	} {
		rec, err := store.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if rec.State != model.StateUploaded || rec.VideoID != wantID {
			t.Fatalf("%s: state %s video %q, want uploaded %q", name, rec.State, rec.VideoID, wantID)
		}
	}
}

func TestRunHoldsPublishedFileThatCannotBeArchived(t *testing.T) {
	f := newFixture(t, "stuck.mp4", "other.mp4")
	store := openStore(t)
	store.Sync([]string{"stuck.mp4"})
	store.MarkPublished("stuck.mp4", "old-id")

	opts := f.options(4)
	opts.Store = store
	opts.Archive = func(src, dir string) (string, error) {
		if filepath.Base(src) == "stuck.mp4" {
			return "", errors.New("permission denied")
		}
		return filepath.Join(dir, filepath.Base(src)), nil
	}
	res, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Total != 1 || fmt.Sprint(f.selected()) != "[other.mp4]" {
		t.Fatalf("published file must be held back: %+v, %v", res, *f.log)
	}
}

func TestRunMarksFailures(t *testing.T) {
	f := newFixture(t, "bad.mp4")
	f.pub.fail["bad.mp4"] = true
	store := openStore(t)
	opts := f.options(1)
	opts.Store = store
	var logs bytes.Buffer
	opts.Log = zerolog.New(&logs)

	if _, err := New(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(logs.String(), `"attempts":1`) {
		t.Fatalf("failure log should carry the attempt count: %s", logs.String())
	}
	rec, err := store.Get("bad.mp4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != model.StateFailed || !strings.Contains(rec.Detail, "backend error") || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}
