package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelnote/internal/config"
	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/images"
	"github.com/dunamismax/pixelnote/internal/queue"
)

// Committer applies queued image commits.
type Committer interface {
	Apply(ctx context.Context, commit domain.ImageCommit) (images.CommitResult, error)
}

type Server struct {
	logger    zerolog.Logger
	server    *asynq.Server
	committer Committer
	metrics   *metrics
	tracer    trace.Tracer
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	committer Committer,
	registry prometheus.Registerer,
) (*Server, error) {
	if committer == nil {
		return nil, fmt.Errorf("image committer is required")
	}

	logger = logger.With().Str("component", "worker").Logger()
	s := &Server{
		logger:    logger,
		committer: committer,
		metrics:   newMetrics(registry),
		tracer:    otel.Tracer("pixelnote/worker"),
	}
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn().
					Err(err).
					Str("task_type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return s, nil
}

// Start begins consuming commit tasks without blocking.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

// Shutdown waits for running tasks and stops the server.
func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeCommitImage, s.handleCommitImage)
	return mux
}

func (s *Server) handleCommitImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	status := "failed"

	commit, err := queue.ParseCommitImagePayload(task)
	if err != nil {
		s.metrics.tasksTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.commit_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("note.id", commit.NoteID),
		attribute.Int("image.bytes", len(commit.Data)),
		attribute.Bool("image.shrink_requested", commit.ShrinkRequested),
	)
	defer span.End()

	s.metrics.activeTasks.Inc()
	defer func() {
		s.metrics.activeTasks.Dec()
		s.metrics.taskDuration.WithLabelValues(status).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(status).Inc()
	}()

	s.logger.Debug().
		Str("note_id", commit.NoteID).
		Str("file_name", commit.FileName).
		Dur("queued_for", time.Since(commit.RequestedAt)).
		Msg("committing image")

	result, err := s.committer.Apply(withDeliveryAttempt(ctx), commit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		if errors.Is(err, domain.ErrNoteNotFound) {
			status = "dropped"
			return fmt.Errorf("commit image: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("commit image: %w", err)
	}

	status = "committed"
	span.SetAttributes(attribute.String("image.outcome", string(result.Outcome)))
	span.SetStatus(codes.Ok, "committed")
	return nil
}

func withDeliveryAttempt(ctx context.Context) context.Context {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return ctx
	}
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return images.WithAttempt(ctx, deliveryAttempt(retried, maxRetry))
}

// deliveryAttempt maps asynq's retry counters to a commit attempt. The last
// attempt is the one after which asynq archives the task.
func deliveryAttempt(retried, maxRetry int) images.Attempt {
	return images.Attempt{Number: retried + 1, Final: retried >= maxRetry}
}
