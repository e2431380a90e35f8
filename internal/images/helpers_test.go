package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/options"
	"github.com/dunamismax/pixelnote/internal/pipeline"
	"github.com/dunamismax/pixelnote/internal/store"
)

type fixture struct {
	service *Service
	store   *store.MemoryNoteStore
	metrics *Metrics
}

// newFixture builds a service over a memory store. A nil resizer uses the
// pure-Go implementation.
func newFixture(t *testing.T, resizer pipeline.Resizer, cfg Config) fixture {
	t.Helper()

	memory := store.NewMemoryNoteStore()
	if cfg.Store == nil {
		cfg.Store = memory
	}
	if cfg.Options == nil {
		cfg.Options = options.NewStatic(map[string]string{options.ImageMaxWidthHeight: "32"})
	}
	cfg.Logger = zerolog.Nop()
	cfg.Pipeline = pipeline.New(resizer, cfg.Options, cfg.Logger)
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Wait(ctx)
	})
	return fixture{service: svc, store: memory, metrics: cfg.Metrics}
}

func waitCommit(t *testing.T, commit *Commit) (CommitResult, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := commit.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for image commit")
	}
	return result, err
}

func mustGetNote(t *testing.T, s store.NoteStore, noteID string) domain.Note {
	t.Helper()

	note, ok, err := s.GetNote(context.Background(), noteID)
	if err != nil {
		t.Fatalf("GetNote returned error: %v", err)
	}
	if !ok {
		t.Fatalf("note %s not found", noteID)
	}
	return note
}

func buildNoisyPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	rng := rand.New(rand.NewPCG(7, 11))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(rng.IntN(256)),
				G: uint8(rng.IntN(256)),
				B: uint8(rng.IntN(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func buildTinyJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// gatedResizer blocks every call until release is closed.
type gatedResizer struct {
	started chan struct{}
	release chan struct{}
	output  []byte
}

func newGatedResizer(output []byte) *gatedResizer {
	return &gatedResizer{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		output:  output,
	}
}

func (r *gatedResizer) Resize(_ context.Context, _ []byte, _ int, _ int) ([]byte, error) {
	r.started <- struct{}{}
	<-r.release
	return r.output, nil
}

func (r *gatedResizer) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("resizer was never called")
	}
}

type countingResizer struct {
	mu    sync.Mutex
	calls int
}

func (r *countingResizer) Resize(_ context.Context, input []byte, _ int, _ int) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return input, nil
}

func (r *countingResizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type failingTxStore struct {
	*store.MemoryNoteStore
	err error
}

func (s failingTxStore) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.MemoryNoteStore.RunInTx(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return s.err
	})
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	commits []domain.ImageCommit
	err     error
}

func (e *fakeEnqueuer) EnqueueCommit(_ context.Context, commit domain.ImageCommit) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.commits = append(e.commits, commit)
	return &asynq.TaskInfo{ID: "task-1", Queue: "images"}, nil
}

type recordedObject struct {
	key         string
	data        []byte
	contentType string
}

type fakeArchive struct {
	mu      sync.Mutex
	objects []recordedObject
	err     error
}

func (a *fakeArchive) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects = append(a.objects, recordedObject{key: key, data: data, contentType: contentType})
	return a.err
}

type sentEvent struct {
	endpoint string
	event    string
	payload  map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) Send(_ context.Context, endpoint, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	body, _ := payload.(map[string]any)
	n.events = append(n.events, sentEvent{endpoint: endpoint, event: event, payload: body})
	return nil
}

func (n *fakeNotifier) Events() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

type panickingResizer struct{}

func (panickingResizer) Resize(context.Context, []byte, int, int) ([]byte, error) {
	panic("codec bug")
}

// labelFailingStore creates notes normally and fails every label write.
type labelFailingStore struct {
	*store.MemoryNoteStore
	err     error
	created []string
}

func (s *labelFailingStore) CreateNote(ctx context.Context, params domain.CreateNoteParams) (domain.Note, error) {
	note, err := s.MemoryNoteStore.CreateNote(ctx, params)
	if err == nil {
		s.created = append(s.created, note.ID)
	}
	return note, err
}

func (s *labelFailingStore) SetLabel(context.Context, string, string, string) error {
	return s.err
}
