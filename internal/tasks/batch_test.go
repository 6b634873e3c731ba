package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/shared"
	th "github.com/desertthunder/imgx/internal/testing"
)

// fakeImages processes every file except those whose name contains "bad".
type fakeImages struct {
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     time.Duration
	download  []byte
}

func (f *fakeImages) Process(ctx context.Context, filename string, content []byte, opts services.ImageOptions) (*services.ImageResult, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if strings.Contains(filename, "bad") {
		return nil, errors.New("unsupported format")
	}
	return &services.ImageResult{
		ID:           "img_" + filename,
		ProcessedURL: "/p/" + filename,
		Format:       "webp",
		Size:         int64(len(content)) / 2,
		Width:        10,
		Height:       20,
	}, nil
}

func (f *fakeImages) Download(ctx context.Context, ref string) ([]byte, error) {
	if f.download == nil {
		return nil, errors.New("not found")
	}
	return f.download, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*models.HistoryEntry
	fail    bool
}

func (h *fakeHistory) Create(e *models.HistoryEntry) error {
	if h.fail {
		return errors.New("db locked")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.SetID(fmt.Sprintf("h%d", len(h.entries)+1))
	h.entries = append(h.entries, e)
	return nil
}

func writeImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		th.MustWriteFile(t, paths[i], []byte(strings.Repeat("x", 100)))
	}
	return paths
}

func fastOpts(opts services.ImageOptions) BatchOpts {
	return BatchOpts{Options: opts, SubjectID: "u_1", RateLimit: 1000}
}

func TestProcessorRun(t *testing.T) {
	t.Run("Processes All Files In Input Order", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "a.png", "b.png", "c.png", "d.png")
		images := &fakeImages{}
		history := &fakeHistory{}

		p := NewProcessor(images, history, nil)
		result, err := p.Run(context.Background(), nil, paths, fastOpts(services.CompressOptions{Quality: 80}))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Total != 4 || result.Succeeded != 4 || result.Failed != 0 {
			t.Errorf("unexpected counts %+v", result)
		}
		for i, r := range result.Results {
			if r.Path != paths[i] {
				t.Errorf("result %d: expected %s, got %s", i, paths[i], r.Path)
			}
		}
		if len(history.entries) != 4 {
			t.Errorf("expected 4 history entries, got %d", len(history.entries))
		}
		if e := history.entries[0]; e.Operation() != models.OpCompress || e.SubjectID() != "u_1" || e.ResultSize() != 50 {
			t.Errorf("unexpected entry %+v", e)
		}
	})

	t.Run("Failures Do Not Stop The Batch", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "ok1.png", "bad.png", "ok2.png")
		history := &fakeHistory{}

		p := NewProcessor(&fakeImages{}, history, nil)
		result, err := p.Run(context.Background(), nil, paths, fastOpts(services.ConvertOptions{Format: "webp"}))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Succeeded != 2 || result.Failed != 1 {
			t.Errorf("expected 2 ok 1 failed, got %d/%d", result.Succeeded, result.Failed)
		}
		bad := result.Results[1]
		if bad.Succeeded() || bad.Err == nil || bad.Entry.ErrorMessage() != "unsupported format" {
			t.Errorf("unexpected failed result %+v", bad)
		}
		if len(history.entries) != 3 {
			t.Errorf("failed files should be recorded too, got %d", len(history.entries))
		}
	})

	t.Run("Missing File Is A Per File Failure", func(t *testing.T) {
		dir := t.TempDir()
		paths := append(writeImages(t, dir, "a.png"), filepath.Join(dir, "gone.png"))

		p := NewProcessor(&fakeImages{}, nil, nil)
		result, err := p.Run(context.Background(), nil, paths, fastOpts(services.CompressOptions{}))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Failed != 1 || result.Results[1].Entry != nil {
			t.Errorf("expected unreadable file to fail without an entry, got %+v", result.Results[1])
		}
	})

	t.Run("Invalid Options Fail Fast", func(t *testing.T) {
		images := &fakeImages{}
		p := NewProcessor(images, nil, nil)

		_, err := p.Run(context.Background(), nil, []string{"a.png"}, fastOpts(services.CropOptions{}))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := p.Run(context.Background(), nil, nil, fastOpts(services.CompressOptions{})); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if images.calls.Load() != 0 {
			t.Error("expected no uploads")
		}
	})

	t.Run("Quota Checked Before Uploading", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "1.png", "2.png", "3.png")
		images := &fakeImages{}

		m := models.DefaultMembership(time.Now())
		m.DailyUsage = 3
		opts := fastOpts(services.CompressOptions{})
		opts.Membership = &m

		_, err := NewProcessor(images, nil, nil).Run(context.Background(), nil, paths, opts)
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Errorf("expected ErrQuotaExceeded, got %v", err)
		}
		if images.calls.Load() != 0 {
			t.Error("expected no uploads when over quota")
		}

		paid := models.Membership{Tier: models.TierPremium}
		opts.Membership = &paid
		if _, err := NewProcessor(images, nil, nil).Run(context.Background(), nil, paths, opts); err != nil {
			t.Errorf("paid tier should not be limited, got %v", err)
		}
	})

	t.Run("Worker Pool Is Bounded", func(t *testing.T) {
		dir := t.TempDir()
		names := make([]string, 12)
		for i := range names {
			names[i] = fmt.Sprintf("%02d.png", i)
		}
		paths := writeImages(t, dir, names...)
		images := &fakeImages{delay: 10 * time.Millisecond}

		opts := fastOpts(services.CompressOptions{})
		opts.NumWorkers = 2
		if _, err := NewProcessor(images, nil, nil).Run(context.Background(), nil, paths, opts); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := images.maxFlight.Load(); got > 2 {
			t.Errorf("expected at most 2 concurrent uploads, got %d", got)
		}
		if images.calls.Load() != 12 {
			t.Errorf("expected 12 uploads, got %d", images.calls.Load())
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "a.png", "b.png")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := NewProcessor(&fakeImages{}, nil, nil).Run(ctx, nil, paths, fastOpts(services.CompressOptions{}))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result == nil || len(result.Results) != 2 || result.Succeeded != 0 {
			t.Errorf("expected every input to be reported as failed, got %+v", result)
		}
	})

	t.Run("Downloads And Manifest", func(t *testing.T) {
		dir := t.TempDir()
		out := filepath.Join(dir, "out")
		paths := writeImages(t, dir, "cat.png")

		opts := fastOpts(services.ConvertOptions{Format: "webp"})
		opts.OutputDir = out
		opts.Format = "csv"
		opts.Manifest = filepath.Join(dir, "manifest.csv")

		result, err := NewProcessor(&fakeImages{download: []byte("webpdata")}, &fakeHistory{}, nil).Run(context.Background(), nil, paths, opts)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		saved := filepath.Join(out, "cat.webp")
		if result.Results[0].Output != saved {
			t.Errorf("expected output %s, got %s", saved, result.Results[0].Output)
		}
		if th.MustReadFile(t, saved) != "webpdata" {
			t.Error("unexpected downloaded content")
		}
		if result.ManifestPath != opts.Manifest || !strings.Contains(th.MustReadFile(t, opts.Manifest), "cat.png") {
			t.Error("expected manifest listing the file")
		}
	})

	t.Run("Shared Base Names Get Distinct Outputs", func(t *testing.T) {
		dir := t.TempDir()
		for _, sub := range []string{"a", "b"} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				t.Fatal(err)
			}
		}
		paths := writeImages(t, dir, filepath.Join("a", "x.png"), filepath.Join("b", "x.png"), filepath.Join("a", "x.jpg"))
		out := filepath.Join(dir, "out")

		opts := fastOpts(services.ConvertOptions{Format: "webp"})
		opts.OutputDir = out
		opts.NumWorkers = 3

		result, err := NewProcessor(&fakeImages{download: []byte("webpdata")}, nil, nil).Run(context.Background(), nil, paths, opts)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		seen := map[string]bool{}
		for _, r := range result.Results {
			if r.Output == "" {
				t.Fatalf("expected %s to be saved", r.Path)
			}
			if seen[r.Output] {
				t.Errorf("output %s reported for more than one input", r.Output)
			}
			seen[r.Output] = true
			th.AssertFileExists(t, r.Output)
		}
		for _, want := range []string{"x.webp", "x-2.webp", "x-3.webp"} {
			if !seen[filepath.Join(out, want)] {
				t.Errorf("expected %s among outputs %v", want, seen)
			}
		}

		files, err := os.ReadDir(out)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 3 {
			t.Errorf("expected 3 files in output directory, got %d", len(files))
		}
	})

	t.Run("Download Failure Keeps Success", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "cat.png")
		opts := fastOpts(services.CompressOptions{})
		opts.OutputDir = filepath.Join(dir, "out")

		result, err := NewProcessor(&fakeImages{}, nil, nil).Run(context.Background(), nil, paths, opts)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Results[0].Succeeded() || result.Results[0].Output != "" {
			t.Errorf("expected processed file without local copy, got %+v", result.Results[0])
		}
	})

	t.Run("History Failure Is Not Fatal", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "a.png")

		result, err := NewProcessor(&fakeImages{}, &fakeHistory{fail: true}, nil).Run(context.Background(), nil, paths, fastOpts(services.CompressOptions{}))
		if err != nil || result.Succeeded != 1 {
			t.Errorf("expected success despite history failure, got %v", err)
		}
	})

	t.Run("Progress Updates", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "a.png", "bad.png")
		prog := make(chan ProgressUpdate, 64)

		if _, err := NewProcessor(&fakeImages{}, nil, nil).Run(context.Background(), prog, paths, fastOpts(services.CompressOptions{})); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		close(prog)

		var phases []Phase
		var last ProgressUpdate
		for u := range prog {
			phases = append(phases, u.Phase)
			last = u
		}
		if len(phases) == 0 || phases[0] != Validate {
			t.Errorf("expected validate first, got %v", phases)
		}
		if last.Phase != Complete || !strings.Contains(last.Message, "1 succeeded, 1 failed") {
			t.Errorf("unexpected final update %+v", last)
		}
	})

	t.Run("Full Progress Channel Never Blocks", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeImages(t, dir, "a.png", "b.png", "c.png")
		prog := make(chan ProgressUpdate)

		done := make(chan struct{})
		go func() {
			NewProcessor(&fakeImages{}, nil, nil).Run(context.Background(), prog, paths, fastOpts(services.CompressOptions{}))
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run blocked on an unread progress channel")
		}
	})
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, "a.png", "b.JPG", "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeImages(t, filepath.Join(dir, "nested"), "c.png")

	t.Run("Directory", func(t *testing.T) {
		got, err := ExpandInputs([]string{dir})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 images without recursion, got %v", got)
		}
	})

	t.Run("Duplicates Removed", func(t *testing.T) {
		a := filepath.Join(dir, "a.png")
		got, err := ExpandInputs([]string{a, a, dir})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 2 || got[0] != a {
			t.Errorf("unexpected inputs %v", got)
		}
	})

	t.Run("Missing Path", func(t *testing.T) {
		if _, err := ExpandInputs([]string{filepath.Join(dir, "nope.png")}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("No Images", func(t *testing.T) {
		empty := t.TempDir()
		if _, err := ExpandInputs([]string{empty}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestOutputNames(t *testing.T) {
	names := newOutputNames()
	got := []string{names.claim("x.webp"), names.claim("X.webp"), names.claim("x.webp"), names.claim("y.webp"), names.claim("noext"), names.claim("noext")}
	want := []string{"x.webp", "X-2.webp", "x-3.webp", "y.webp", "noext", "noext-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("claim %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("/tmp/cat.png", &services.ImageResult{Format: "jpg"}); got != "cat.jpeg" {
		t.Errorf("expected cat.jpeg, got %s", got)
	}
	if got := OutputName("dog.png", &services.ImageResult{}); got != "dog.png" {
		t.Errorf("expected dog.png, got %s", got)
	}
}
