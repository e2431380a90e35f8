package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelnote/internal/domain"
)

type storeFactory func(t *testing.T) NoteStore

func storeBackends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) NoteStore {
			return NewMemoryNoteStore()
		},
		"sqlite": func(t *testing.T) NoteStore {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "notes.db"))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s NoteStore)) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func createImageNote(t *testing.T, s NoteStore, content []byte) domain.Note {
	t.Helper()

	note, err := s.CreateNote(context.Background(), domain.CreateNoteParams{
		ParentID: RootNoteID,
		Title:    "photo.png",
		Type:     domain.NoteTypeImage,
		Mime:     domain.MimeUnknown,
		Content:  content,
	})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		created := createImageNote(t, s, nil)

		got, ok, err := s.GetNote(ctx, created.ID)
		if err != nil || !ok {
			t.Fatalf("get note: ok=%v err=%v", ok, err)
		}
		if got.Mime != domain.MimeUnknown || got.Type != domain.NoteTypeImage || got.ParentID != RootNoteID {
			t.Fatalf("unexpected note: %+v", got)
		}
		if len(got.Content) != 0 {
			t.Fatalf("expected empty content, got %d bytes", len(got.Content))
		}

		if _, ok, err := s.GetNote(ctx, "missing"); err != nil || ok {
			t.Fatalf("expected missing note, ok=%v err=%v", ok, err)
		}
	})
}

func TestCreateNoteRequiresParent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		_, err := s.CreateNote(context.Background(), domain.CreateNoteParams{
			ParentID: "nope",
			Title:    "x",
			Type:     domain.NoteTypeImage,
			Mime:     domain.MimeUnknown,
		})
		if !errors.Is(err, domain.ErrNoteNotFound) {
			t.Fatalf("expected ErrNoteNotFound, got %v", err)
		}
	})
}

func TestSetLabelUpserts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		note := createImageNote(t, s, nil)

		if err := s.SetLabel(ctx, note.ID, domain.LabelOriginalFileName, "a.png"); err != nil {
			t.Fatalf("set label: %v", err)
		}
		if err := s.SetLabel(ctx, note.ID, domain.LabelOriginalFileName, "b.png"); err != nil {
			t.Fatalf("update label: %v", err)
		}

		got, _, err := s.GetNote(ctx, note.ID)
		if err != nil {
			t.Fatalf("get note: %v", err)
		}
		if value, _ := got.Label(domain.LabelOriginalFileName); value != "b.png" {
			t.Fatalf("expected b.png, got %q", value)
		}

		if err := s.SetLabel(ctx, "missing", "x", "y"); !errors.Is(err, domain.ErrNoteNotFound) {
			t.Fatalf("expected ErrNoteNotFound, got %v", err)
		}
	})
}

func TestDeleteNoteRemovesLabelsAndRevisions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		note := createImageNote(t, s, []byte("v1"))
		if err := s.SetLabel(ctx, note.ID, domain.LabelOriginalFileName, "a.png"); err != nil {
			t.Fatalf("set label: %v", err)
		}
		if _, err := s.CreateRevision(ctx, note.ID); err != nil {
			t.Fatalf("create revision: %v", err)
		}

		if err := s.DeleteNote(ctx, note.ID); err != nil {
			t.Fatalf("delete note: %v", err)
		}
		if _, ok, err := s.GetNote(ctx, note.ID); err != nil || ok {
			t.Fatalf("expected note to be gone, ok=%v err=%v", ok, err)
		}
		revisions, err := s.ListRevisions(ctx, note.ID)
		if err != nil {
			t.Fatalf("list revisions: %v", err)
		}
		if len(revisions) != 0 {
			t.Fatalf("expected revisions to be deleted, got %d", len(revisions))
		}

		if err := s.DeleteNote(ctx, note.ID); err != nil {
			t.Fatalf("deleting a missing note should succeed, got %v", err)
		}
		if err := s.DeleteNote(ctx, RootNoteID); !errors.Is(err, ErrRootNote) {
			t.Fatalf("expected ErrRootNote, got %v", err)
		}
	})
}

func TestRunInTxCommitsAllWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		note := createImageNote(t, s, nil)

		err := s.RunInTx(ctx, func(tx Tx) error {
			current, ok, err := tx.GetNote(ctx, note.ID)
			if err != nil || !ok {
				t.Fatalf("tx get note: ok=%v err=%v", ok, err)
			}
			current.Mime = "image/png"
			if err := tx.SaveNote(ctx, current); err != nil {
				return err
			}
			return tx.SetContent(ctx, note.ID, []byte("pixels"))
		})
		if err != nil {
			t.Fatalf("run in tx: %v", err)
		}

		got, _, err := s.GetNote(ctx, note.ID)
		if err != nil {
			t.Fatalf("get note: %v", err)
		}
		if got.Mime != "image/png" || string(got.Content) != "pixels" {
			t.Fatalf("expected committed mime and content, got mime=%s content=%q", got.Mime, got.Content)
		}
	})
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		note := createImageNote(t, s, []byte("old"))
		boom := errors.New("boom")

		err := s.RunInTx(ctx, func(tx Tx) error {
			current, _, _ := tx.GetNote(ctx, note.ID)
			current.Mime = "image/png"
			if err := tx.SaveNote(ctx, current); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		got, _, _ := s.GetNote(ctx, note.ID)
		if got.Mime != domain.MimeUnknown || string(got.Content) != "old" {
			t.Fatalf("expected rollback, got mime=%s content=%q", got.Mime, got.Content)
		}

		err = s.RunInTx(ctx, func(tx Tx) error {
			return tx.SetContent(ctx, "missing", []byte("x"))
		})
		if !errors.Is(err, domain.ErrNoteNotFound) {
			t.Fatalf("expected ErrNoteNotFound, got %v", err)
		}
	})
}

func TestRevisions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s NoteStore) {
		ctx := context.Background()
		note := createImageNote(t, s, []byte("first"))

		rev, err := s.CreateRevision(ctx, note.ID)
		if err != nil {
			t.Fatalf("create revision: %v", err)
		}
		if !bytes.Equal(rev.Content, []byte("first")) || rev.ContentHash != ContentHash([]byte("first")) {
			t.Fatalf("unexpected revision: %+v", rev)
		}

		if err := s.RunInTx(ctx, func(tx Tx) error {
			return tx.SetContent(ctx, note.ID, []byte("second"))
		}); err != nil {
			t.Fatalf("update content: %v", err)
		}
		if _, err := s.CreateRevision(ctx, note.ID); err != nil {
			t.Fatalf("create second revision: %v", err)
		}
		if err := s.ProtectRevisions(ctx, note.ID, true); err != nil {
			t.Fatalf("protect revisions: %v", err)
		}

		revisions, err := s.ListRevisions(ctx, note.ID)
		if err != nil {
			t.Fatalf("list revisions: %v", err)
		}
		if len(revisions) != 2 {
			t.Fatalf("expected 2 revisions, got %d", len(revisions))
		}
		if string(revisions[0].Content) != "first" || string(revisions[1].Content) != "second" {
			t.Fatalf("expected revisions in creation order, got %q then %q", revisions[0].Content, revisions[1].Content)
		}
		for _, r := range revisions {
			if !r.IsProtected {
				t.Fatalf("expected revision %s to be protected", r.ID)
			}
		}

		if _, err := s.CreateRevision(ctx, "missing"); !errors.Is(err, domain.ErrNoteNotFound) {
			t.Fatalf("expected ErrNoteNotFound, got %v", err)
		}
	})
}

func TestOptions(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			s, ok := factory(t).(OptionStore)
			if !ok {
				t.Fatal("expected store to implement OptionStore")
			}
			ctx := context.Background()

			if _, found, err := s.Option(ctx, "imageJpegQuality"); err != nil || found {
				t.Fatalf("expected unset option, found=%v err=%v", found, err)
			}
			if err := s.SetOption(ctx, "imageJpegQuality", "60"); err != nil {
				t.Fatalf("set option: %v", err)
			}
			if err := s.SetOption(ctx, "imageJpegQuality", "70"); err != nil {
				t.Fatalf("overwrite option: %v", err)
			}
			value, found, err := s.Option(ctx, "imageJpegQuality")
			if err != nil || !found || value != "70" {
				t.Fatalf("expected 70, got %q found=%v err=%v", value, found, err)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	got := postgresDialect.rebind(`UPDATE notes SET mime = ? WHERE id = ?`)
	if got != `UPDATE notes SET mime = $1 WHERE id = $2` {
		t.Fatalf("unexpected rebind output: %s", got)
	}
	if sqliteDialect.rebind("a = ?") != "a = ?" {
		t.Fatal("expected sqlite queries to be left alone")
	}
}
