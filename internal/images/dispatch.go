package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/options"
	"github.com/dunamismax/pixelnote/internal/pipeline"
	"github.com/dunamismax/pixelnote/internal/store"
)

const (
	EventCommitted    = "image.committed"
	EventCommitFailed = "image.commit_failed"

	outcomeNone = "none"
)

// dispatch schedules the commit outside the caller's cancellation scope.
func (s *Service) dispatch(ctx context.Context, job domain.ImageCommit) *Commit {
	commit := newCommit(job.NoteID)
	detached := context.WithoutCancel(ctx)

	if s.enqueuer != nil {
		info, err := s.enqueuer.EnqueueCommit(detached, job)
		if err != nil {
			err = fmt.Errorf("enqueue image commit: %w", err)
			s.report(detached, job, CommitResult{NoteID: job.NoteID, FileName: job.FileName}, err)
			commit.resolve(CommitResult{NoteID: job.NoteID, FileName: job.FileName}, err)
			return commit
		}
		s.logger.Debug().
			Str("note_id", job.NoteID).
			Str("task_id", info.ID).
			Str("queue", info.Queue).
			Msg("image commit enqueued")
		commit.resolve(CommitResult{NoteID: job.NoteID, FileName: job.FileName, TaskID: info.ID}, nil)
		return commit
	}

	if !s.track() {
		result := CommitResult{NoteID: job.NoteID, FileName: job.FileName}
		s.report(detached, job, result, ErrDraining)
		commit.resolve(result, ErrDraining)
		return commit
	}
	s.metrics.inFlight.Inc()
	go func() {
		defer s.untrack()
		defer s.metrics.inFlight.Dec()

		result, err := s.applyRecovered(detached, job)
		commit.resolve(result, err)
	}()
	return commit
}

func (s *Service) applyRecovered(ctx context.Context, job domain.ImageCommit) (result CommitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image commit panicked: %v", r)
			result = CommitResult{NoteID: job.NoteID, FileName: job.FileName}
			s.report(ctx, job, result, err)
		}
	}()
	return s.Apply(ctx, job)
}

// Apply transforms the upload and writes MIME and content into the note in a
// single transaction. Failures are logged, counted and passed to the error
// sink and webhook before being returned.
func (s *Service) Apply(ctx context.Context, job domain.ImageCommit) (CommitResult, error) {
	startedAt := time.Now()
	ctx, span := s.tracer.Start(ctx, "images.commit", trace.WithAttributes(
		attribute.String("note.id", job.NoteID),
		attribute.Int("image.bytes", len(job.Data)),
	))
	defer span.End()

	result, err := s.apply(ctx, job)

	status := "committed"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
	} else {
		span.SetStatus(codes.Ok, "committed")
	}
	outcome := string(result.Outcome)
	if outcome == "" {
		outcome = outcomeNone
	}
	s.metrics.commitsTotal.WithLabelValues(outcome, status).Inc()
	s.metrics.commitDuration.WithLabelValues(status).Observe(time.Since(startedAt).Seconds())

	s.report(ctx, job, result, err)
	return result, err
}

func (s *Service) apply(ctx context.Context, job domain.ImageCommit) (CommitResult, error) {
	if AttemptFrom(ctx).Number == 1 {
		s.archiveOriginal(ctx, job)
	}

	shrink := job.ShrinkRequested && s.compressionEnabled(ctx)
	processed := s.pipeline.Process(ctx, job.Data, job.OriginalName, shrink)

	result := CommitResult{
		NoteID:        job.NoteID,
		FileName:      job.FileName,
		Format:        processed.Format,
		Mime:          processed.Format.Mime(),
		Outcome:       processed.Outcome,
		OriginalBytes: len(job.Data),
		StoredBytes:   len(processed.Data),
	}

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		note, ok, err := tx.GetNote(ctx, job.NoteID)
		if err != nil {
			return fmt.Errorf("load note: %w", err)
		}
		if !ok {
			return domain.ErrNoteNotFound
		}

		note.Mime = result.Mime
		if err := tx.SaveNote(ctx, note); err != nil {
			return fmt.Errorf("save note: %w", err)
		}

		content := processed.Data
		if note.IsProtected {
			if !s.sessionActive() {
				return ErrProtectedSessionRequired
			}
			content, err = s.session.Encrypt(content)
			if err != nil {
				return fmt.Errorf("encrypt content: %w", err)
			}
		}
		if err := tx.SetContent(ctx, note.ID, content); err != nil {
			return fmt.Errorf("set content: %w", err)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("commit image %s: %w", job.NoteID, err)
	}

	if saved := result.OriginalBytes - result.StoredBytes; saved > 0 {
		s.metrics.bytesSaved.Add(float64(saved))
	}
	return result, nil
}

func (s *Service) compressionEnabled(ctx context.Context) bool {
	enabled, err := s.options.Bool(ctx, options.CompressImages)
	if err != nil {
		s.logger.Warn().Err(err).Str("option", options.CompressImages).Msg("option lookup failed, using default")
		return options.DefaultCompressImages
	}
	return enabled
}

// archiveOriginal keeps the untouched upload in object storage. It never
// blocks the commit.
func (s *Service) archiveOriginal(ctx context.Context, job domain.ImageCommit) {
	if s.archive == nil {
		return
	}

	key := ArchiveKey(job.NoteID, job.FileName)
	contentType := pipeline.DetectFormat(job.Data).Mime()
	if err := s.archive.WriteObject(ctx, key, job.Data, contentType); err != nil {
		s.logger.Warn().
			Err(err).
			Str("note_id", job.NoteID).
			Str("object_key", key).
			Msg("archive original upload failed")
	}
}

// ArchivePrefix is the object key prefix holding every original uploaded
// for a note.
func ArchivePrefix(noteID string) string {
	return fmt.Sprintf("originals/%s/", noteID)
}

func ArchiveKey(noteID, fileName string) string {
	return ArchivePrefix(noteID) + fileName
}

// report publishes the result of one attempt. Failures that will be delivered
// again are only logged; the error sink and the webhook see the last attempt.
func (s *Service) report(ctx context.Context, job domain.ImageCommit, result CommitResult, err error) {
	attempt := AttemptFrom(ctx)
	if err != nil {
		if !attempt.Final && !errors.Is(err, domain.ErrNoteNotFound) {
			s.logger.Warn().
				Err(err).
				Str("note_id", job.NoteID).
				Int("attempt", attempt.Number).
				Msg("image commit attempt failed, will retry")
			return
		}

		s.logger.Error().
			Err(err).
			Str("note_id", job.NoteID).
			Str("file_name", job.FileName).
			Str("original_name", job.OriginalName).
			Int("attempt", attempt.Number).
			Msg("image commit failed")
		if s.onCommitError != nil {
			s.onCommitError(job, err)
		}
		s.notify(ctx, EventCommitFailed, map[string]any{
			"note_id":      job.NoteID,
			"file_name":    job.FileName,
			"requested_at": job.RequestedAt,
			"failed_at":    s.now().UTC(),
			"attempts":     attempt.Number,
			"error":        err.Error(),
		})
		return
	}

	s.logger.Info().
		Str("note_id", result.NoteID).
		Str("mime", result.Mime).
		Str("outcome", string(result.Outcome)).
		Int("original_bytes", result.OriginalBytes).
		Int("stored_bytes", result.StoredBytes).
		Msg("image committed")
	s.notify(ctx, EventCommitted, map[string]any{
		"note_id":        result.NoteID,
		"file_name":      result.FileName,
		"mime":           result.Mime,
		"outcome":        result.Outcome,
		"original_bytes": result.OriginalBytes,
		"stored_bytes":   result.StoredBytes,
		"requested_at":   job.RequestedAt,
		"committed_at":   s.now().UTC(),
		"attempts":       attempt.Number,
		"url":            domain.ImageURL(result.NoteID, result.FileName),
	})
}

func (s *Service) notify(ctx context.Context, event string, body map[string]any) {
	if s.notifier == nil || s.webhookURL == "" {
		return
	}
	if err := s.notifier.Send(ctx, s.webhookURL, event, body); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
	}
}
