// Package images stores uploaded images as notes. Metadata is recorded before
// the caller gets an answer; transforming the bytes and writing them into the
// note happens in a detached commit that either runs in-process or is handed
// to the worker queue.
package images

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/filename"
	"github.com/dunamismax/pixelnote/internal/options"
	"github.com/dunamismax/pixelnote/internal/pipeline"
	"github.com/dunamismax/pixelnote/internal/store"
)

var (
	ErrProtectedSessionRequired = errors.New("protected session is required")
	ErrNotImage                 = errors.New("note is not an image")
	ErrDraining                 = errors.New("image service is shutting down")
)

type Session interface {
	IsActive() bool
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type Enqueuer interface {
	EnqueueCommit(ctx context.Context, commit domain.ImageCommit) (*asynq.TaskInfo, error)
}

type Archive interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type Notifier interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Config struct {
	Store    store.NoteStore
	Pipeline *pipeline.Pipeline
	Options  options.Provider
	Session  Session
	Logger   zerolog.Logger
	Metrics  *Metrics

	// Enqueuer moves commits to the worker queue. Without it commits run on
	// goroutines owned by the service.
	Enqueuer Enqueuer
	Archive  Archive
	Notifier Notifier

	WebhookURL string

	// OnCommitError is called for every failed commit after it was logged.
	OnCommitError func(commit domain.ImageCommit, err error)
}

type Service struct {
	store         store.NoteStore
	pipeline      *pipeline.Pipeline
	options       options.Provider
	session       Session
	enqueuer      Enqueuer
	archive       Archive
	notifier      Notifier
	webhookURL    string
	onCommitError func(domain.ImageCommit, error)
	metrics       *Metrics
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	// mu guards the in-process commit count. idle is closed while no
	// commit is running.
	mu       sync.Mutex
	draining bool
	active   int
	idle     chan struct{}
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("note store is required")
	}
	if cfg.Options == nil {
		cfg.Options = options.NewStatic(nil)
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = pipeline.New(nil, cfg.Options, cfg.Logger)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	idle := make(chan struct{})
	close(idle)

	return &Service{
		store:         cfg.Store,
		pipeline:      cfg.Pipeline,
		options:       cfg.Options,
		session:       cfg.Session,
		enqueuer:      cfg.Enqueuer,
		archive:       cfg.Archive,
		notifier:      cfg.Notifier,
		webhookURL:    cfg.WebhookURL,
		onCommitError: cfg.OnCommitError,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.With().Str("component", "images").Logger(),
		tracer:        otel.Tracer("pixelnote/images"),
		now:           time.Now,
		idle:          idle,
	}, nil
}

type SavedImage struct {
	FileName string
	Note     domain.Note
	NoteID   string
	URL      string
	Commit   *Commit
}

// SaveImage creates an image note under parentID and schedules the commit of
// its content. The returned note still carries the placeholder MIME and no
// content.
func (s *Service) SaveImage(ctx context.Context, parentID string, data []byte, originalName string, shrinkRequested bool) (SavedImage, error) {
	if err := s.accepting(); err != nil {
		return SavedImage{}, err
	}

	ctx, span := s.tracer.Start(ctx, "images.save")
	defer span.End()

	fileName := filename.Sanitize(originalName)

	parent, ok, err := s.store.GetNote(ctx, parentID)
	if err != nil {
		return SavedImage{}, fmt.Errorf("load parent note %s: %w", parentID, err)
	}
	if !ok {
		return SavedImage{}, fmt.Errorf("parent note %s: %w", parentID, domain.ErrNoteNotFound)
	}

	note, err := s.store.CreateNote(ctx, domain.CreateNoteParams{
		ParentID:    parent.ID,
		Title:       fileName,
		Type:        domain.NoteTypeImage,
		Mime:        domain.MimeUnknown,
		IsProtected: parent.IsProtected && s.sessionActive(),
	})
	if err != nil {
		return SavedImage{}, fmt.Errorf("create image note: %w", err)
	}

	if err := s.store.SetLabel(ctx, note.ID, domain.LabelOriginalFileName, originalName); err != nil {
		err = fmt.Errorf("record original file name: %w", err)
		if delErr := s.store.DeleteNote(context.WithoutCancel(ctx), note.ID); delErr != nil {
			err = errors.Join(err, fmt.Errorf("remove placeholder note %s: %w", note.ID, delErr))
		}
		return SavedImage{}, err
	}
	if note.Labels == nil {
		note.Labels = map[string]string{}
	}
	note.Labels[domain.LabelOriginalFileName] = originalName

	span.SetAttributes(
		attribute.String("note.id", note.ID),
		attribute.Bool("note.protected", note.IsProtected),
	)
	s.logger.Info().
		Str("note_id", note.ID).
		Str("parent_id", parent.ID).
		Str("file_name", fileName).
		Int("bytes", len(data)).
		Msg("image note created")

	commit := s.dispatch(ctx, domain.ImageCommit{
		NoteID:          note.ID,
		FileName:        fileName,
		OriginalName:    originalName,
		Data:            data,
		ShrinkRequested: shrinkRequested,
		RequestedAt:     s.now().UTC(),
	})

	return SavedImage{
		FileName: fileName,
		Note:     note,
		NoteID:   note.ID,
		URL:      domain.ImageURL(note.ID, fileName),
		Commit:   commit,
	}, nil
}

// UpdateImage replaces the content of an existing image note. The revision
// of the current state is stored before the commit is scheduled.
func (s *Service) UpdateImage(ctx context.Context, noteID string, data []byte, originalName string) (*Commit, error) {
	if err := s.accepting(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "images.update", trace.WithAttributes(attribute.String("note.id", noteID)))
	defer span.End()

	note, ok, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", noteID, err)
	}
	if !ok {
		return nil, fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}

	revision, err := s.store.CreateRevision(ctx, note.ID)
	if err != nil {
		return nil, fmt.Errorf("create revision: %w", err)
	}
	if note.IsProtected {
		if err := s.store.ProtectRevisions(ctx, note.ID, true); err != nil {
			return nil, fmt.Errorf("protect revisions: %w", err)
		}
	}

	if err := s.store.SetLabel(ctx, note.ID, domain.LabelOriginalFileName, originalName); err != nil {
		return nil, fmt.Errorf("record original file name: %w", err)
	}

	s.logger.Info().
		Str("note_id", note.ID).
		Str("revision_id", revision.ID).
		Int("bytes", len(data)).
		Msg("image update accepted")

	return s.dispatch(ctx, domain.ImageCommit{
		NoteID:          note.ID,
		FileName:        filename.Sanitize(originalName),
		OriginalName:    originalName,
		Data:            data,
		ShrinkRequested: true,
		RequestedAt:     s.now().UTC(),
	}), nil
}

// OpenImage returns an image note with its committed content, decrypted when
// the note is protected.
func (s *Service) OpenImage(ctx context.Context, noteID string) (domain.Note, error) {
	note, ok, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return domain.Note{}, fmt.Errorf("load note %s: %w", noteID, err)
	}
	if !ok {
		return domain.Note{}, fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}
	if note.Type != domain.NoteTypeImage {
		return domain.Note{}, fmt.Errorf("note %s: %w", noteID, ErrNotImage)
	}

	if note.IsProtected && len(note.Content) > 0 {
		if !s.sessionActive() {
			return domain.Note{}, ErrProtectedSessionRequired
		}
		plaintext, err := s.session.Decrypt(note.Content)
		if err != nil {
			return domain.Note{}, fmt.Errorf("open protected image %s: %w", noteID, err)
		}
		note.Content = plaintext
	}
	return note, nil
}

// Wait blocks until no in-process commit is running or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting uploads, then waits like Wait. Commits that reach
// dispatch after Shutdown started resolve with ErrDraining.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	return s.Wait(ctx)
}

func (s *Service) accepting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return ErrDraining
	}
	return nil
}

// track registers an in-process commit unless Shutdown has started.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	if s.active == 0 {
		s.idle = make(chan struct{})
	}
	s.active++
	return true
}

func (s *Service) untrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
}

func (s *Service) sessionActive() bool {
	return s.session != nil && s.session.IsActive()
}
