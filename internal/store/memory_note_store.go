package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/id"
)

// MemoryNoteStore keeps notes in process memory. Transactions hold the store
// lock for their whole duration and apply staged writes only on success.
type MemoryNoteStore struct {
	mu        sync.RWMutex
	notes     map[string]domain.Note
	revisions map[string][]domain.Revision
	options   map[string]string
}

func NewMemoryNoteStore() *MemoryNoteStore {
	now := time.Now().UTC()
	return &MemoryNoteStore{
		notes: map[string]domain.Note{
			RootNoteID: {
				ID:         RootNoteID,
				Title:      "root",
				Type:       domain.NoteTypeText,
				Mime:       "text/html",
				Content:    []byte{},
				Labels:     map[string]string{},
				CreatedAt:  now,
				ModifiedAt: now,
			},
		},
		revisions: make(map[string][]domain.Revision),
		options:   make(map[string]string),
	}
}

func (s *MemoryNoteStore) CreateNote(_ context.Context, params domain.CreateNoteParams) (domain.Note, error) {
	if err := params.Validate(); err != nil {
		return domain.Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[params.ParentID]; !ok {
		return domain.Note{}, fmt.Errorf("parent %s: %w", params.ParentID, domain.ErrNoteNotFound)
	}

	now := time.Now().UTC()
	note := domain.Note{
		ID:          id.New(),
		ParentID:    params.ParentID,
		Title:       params.Title,
		Type:        params.Type,
		Mime:        params.Mime,
		Content:     slices.Clone(nonNil(params.Content)),
		IsProtected: params.IsProtected,
		Labels:      map[string]string{},
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	s.notes[note.ID] = note
	return cloneNote(note), nil
}

func (s *MemoryNoteStore) GetNote(_ context.Context, noteID string) (domain.Note, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[noteID]
	if !ok {
		return domain.Note{}, false, nil
	}
	return cloneNote(note), true, nil
}

func (s *MemoryNoteStore) SetLabel(_ context.Context, noteID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}
	note.Labels = maps.Clone(note.Labels)
	note.Labels[name] = value
	s.notes[noteID] = note
	return nil
}

func (s *MemoryNoteStore) DeleteNote(_ context.Context, noteID string) error {
	if noteID == RootNoteID {
		return ErrRootNote
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, noteID)
	delete(s.revisions, noteID)
	return nil
}

func (s *MemoryNoteStore) CreateRevision(_ context.Context, noteID string) (domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[noteID]
	if !ok {
		return domain.Revision{}, fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}

	rev := domain.Revision{
		ID:          id.New(),
		NoteID:      note.ID,
		Title:       note.Title,
		Type:        note.Type,
		Mime:        note.Mime,
		Content:     slices.Clone(note.Content),
		ContentHash: ContentHash(note.Content),
		IsProtected: note.IsProtected,
		CreatedAt:   time.Now().UTC(),
	}
	s.revisions[noteID] = append(s.revisions[noteID], rev)
	return rev, nil
}

func (s *MemoryNoteStore) ProtectRevisions(_ context.Context, noteID string, protected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.revisions[noteID] {
		s.revisions[noteID][i].IsProtected = protected
	}
	return nil
}

func (s *MemoryNoteStore) ListRevisions(_ context.Context, noteID string) ([]domain.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Revision, 0, len(s.revisions[noteID]))
	for _, rev := range s.revisions[noteID] {
		rev.Content = slices.Clone(rev.Content)
		out = append(out, rev)
	}
	return out, nil
}

func (s *MemoryNoteStore) Option(_ context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.options[name]
	return value, ok, nil
}

func (s *MemoryNoteStore) SetOption(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[name] = value
	return nil
}

func (s *MemoryNoteStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[string]domain.Note)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for noteID, note := range tx.staged {
		s.notes[noteID] = note
	}
	return nil
}

type memoryTx struct {
	store  *MemoryNoteStore
	staged map[string]domain.Note
}

func (t *memoryTx) current(noteID string) (domain.Note, bool) {
	if note, ok := t.staged[noteID]; ok {
		return note, true
	}
	note, ok := t.store.notes[noteID]
	return note, ok
}

func (t *memoryTx) GetNote(_ context.Context, noteID string) (domain.Note, bool, error) {
	note, ok := t.current(noteID)
	if !ok {
		return domain.Note{}, false, nil
	}
	return cloneNote(note), true, nil
}

func (t *memoryTx) SaveNote(_ context.Context, note domain.Note) error {
	existing, ok := t.current(note.ID)
	if !ok {
		return fmt.Errorf("note %s: %w", note.ID, domain.ErrNoteNotFound)
	}
	existing.Title = note.Title
	existing.Type = note.Type
	existing.Mime = note.Mime
	existing.IsProtected = note.IsProtected
	existing.ModifiedAt = time.Now().UTC()
	t.staged[note.ID] = existing
	return nil
}

func (t *memoryTx) SetContent(_ context.Context, noteID string, content []byte) error {
	existing, ok := t.current(noteID)
	if !ok {
		return fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}
	existing.Content = slices.Clone(nonNil(content))
	existing.ModifiedAt = time.Now().UTC()
	t.staged[noteID] = existing
	return nil
}

func cloneNote(note domain.Note) domain.Note {
	note.Content = slices.Clone(note.Content)
	note.Labels = maps.Clone(note.Labels)
	if note.Labels == nil {
		note.Labels = map[string]string{}
	}
	return note
}
