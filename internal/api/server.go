package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/images"
	"github.com/dunamismax/pixelnote/internal/store"
	"github.com/dunamismax/pixelnote/internal/telemetry"
)

const (
	defaultMaxUploadBytes = 50 << 20
	multipartMemoryBytes  = 8 << 20
	uploadField           = "upload"
)

// Content types accepted for uploads, as sent by browsers.
var allowedUploadTypes = map[string]bool{
	"image/png":     true,
	"image/jpg":     true,
	"image/jpeg":    true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

type ImageService interface {
	SaveImage(ctx context.Context, parentID string, data []byte, originalName string, shrinkRequested bool) (images.SavedImage, error)
	UpdateImage(ctx context.Context, noteID string, data []byte, originalName string) (*images.Commit, error)
	OpenImage(ctx context.Context, noteID string) (domain.Note, error)
}

type RevisionLister interface {
	ListRevisions(ctx context.Context, noteID string) ([]domain.Revision, error)
}

type Options struct {
	MaxUploadBytes int64
	RateLimiter    RateLimiter
	// ClientHeader identifies the caller for rate limiting.
	ClientHeader string
	Registry     *prometheus.Registry
}

type Server struct {
	logger                zerolog.Logger
	images                ImageService
	revisions             RevisionLister
	rateLimiter           RateLimiter
	rateLimitClientHeader string
	maxUploadBytes        int64
	registry              *prometheus.Registry
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

func NewServer(logger zerolog.Logger, imageService ImageService, revisions RevisionLister, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if strings.TrimSpace(opts.ClientHeader) == "" {
		opts.ClientHeader = "X-Client-ID"
	}
	if opts.Registry == nil {
		opts.Registry = telemetry.NewRegistry()
	}

	s := &Server{
		logger:                logger.With().Str("component", "api").Logger(),
		images:                imageService,
		revisions:             revisions,
		rateLimiter:           opts.RateLimiter,
		rateLimitClientHeader: opts.ClientHeader,
		maxUploadBytes:        opts.MaxUploadBytes,
		registry:              opts.Registry,
		metrics:               newMetrics(opts.Registry),
		tracer:                otel.Tracer("pixelnote/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", telemetry.MetricsHandler(s.registry))
	s.mux.HandleFunc("POST /api/images", s.handleSaveImage)
	s.mux.HandleFunc("PUT /api/images/{noteId}/file", s.handleUpdateImage)
	s.mux.HandleFunc("GET /api/images/{noteId}/{fileName}", s.handleGetImage)
	s.mux.HandleFunc("GET /api/notes/{noteId}/revisions", s.handleListRevisions)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	parentID := strings.TrimSpace(r.FormValue("parentNoteId"))
	if parentID == "" {
		parentID = store.RootNoteID
	}
	shrink, err := parseFormBool(r.FormValue("shrinkImage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "shrinkImage must be a boolean")
		return
	}

	saved, err := s.images.SaveImage(r.Context(), parentID, upload.Data, upload.OriginalName, shrink)
	if err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "parent note not found")
			return
		}
		if errors.Is(err, images.ErrDraining) {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		s.logger.Error().Err(err).Str("parent_id", parentID).Msg("save image failed")
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}
	s.metrics.uploadBytes.WithLabelValues("save").Observe(float64(len(upload.Data)))

	writeJSON(w, http.StatusCreated, map[string]any{
		"uploaded": true,
		"noteId":   saved.NoteID,
		"fileName": saved.FileName,
		"url":      saved.URL,
	})
}

func (s *Server) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("noteId")
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	if _, err := s.images.UpdateImage(r.Context(), noteID, upload.Data, upload.OriginalName); err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		if errors.Is(err, images.ErrDraining) {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		s.logger.Error().Err(err).Str("note_id", noteID).Msg("update image failed")
		writeError(w, http.StatusInternalServerError, "failed to update image")
		return
	}
	s.metrics.uploadBytes.WithLabelValues("update").Observe(float64(len(upload.Data)))

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": true})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("noteId")

	note, err := s.images.OpenImage(r.Context(), noteID)
	switch {
	case errors.Is(err, domain.ErrNoteNotFound):
		writeError(w, http.StatusNotFound, "note not found")
		return
	case errors.Is(err, images.ErrNotImage):
		writeError(w, http.StatusBadRequest, "note is not an image")
		return
	case errors.Is(err, images.ErrProtectedSessionRequired):
		writeError(w, http.StatusForbidden, "protected session is not active")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("note_id", noteID).Msg("open image failed")
		writeError(w, http.StatusInternalServerError, "failed to load image")
		return
	}

	if note.Mime == domain.MimeUnknown {
		writeError(w, http.StatusNotFound, "image is not committed yet")
		return
	}

	etag := `"` + store.ContentHash(note.Content) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", note.Mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(note.Content)))
	if note.Mime == "image/svg+xml" {
		w.Header().Set("Content-Security-Policy", "script-src 'none'")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(note.Content)
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("noteId")

	revisions, err := s.revisions.ListRevisions(r.Context(), noteID)
	if err != nil {
		s.logger.Error().Err(err).Str("note_id", noteID).Msg("list revisions failed")
		writeError(w, http.StatusInternalServerError, "failed to list revisions")
		return
	}

	out := make([]map[string]any, 0, len(revisions))
	for _, rev := range revisions {
		out = append(out, map[string]any{
			"revisionId":  rev.ID,
			"title":       rev.Title,
			"mime":        rev.Mime,
			"contentHash": rev.ContentHash,
			"bytes":       len(rev.Content),
			"isProtected": rev.IsProtected,
			"createdAt":   rev.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"noteId": noteID, "revisions": out})
}

// readUpload extracts the multipart upload and writes the error response
// itself when the request is unusable.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (domain.UploadedAsset, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return domain.UploadedAsset{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return domain.UploadedAsset{}, false
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q file", uploadField))
		return domain.UploadedAsset{}, false
	}
	defer file.Close()

	if !allowedUploadTypes[uploadContentType(header)] {
		writeError(w, http.StatusBadRequest, "unknown image type")
		return domain.UploadedAsset{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return domain.UploadedAsset{}, false
	}
	return domain.UploadedAsset{Data: data, OriginalName: header.Filename}, true
}

func uploadContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

func parseFormBool(value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
