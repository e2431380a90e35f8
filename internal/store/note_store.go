package store

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"

	"github.com/dunamismax/pixelnote/internal/domain"
)

// RootNoteID is created with the schema so uploads always have a parent.
const RootNoteID = "root"

var ErrRootNote = errors.New("root note cannot be deleted")

type NoteStore interface {
	CreateNote(ctx context.Context, params domain.CreateNoteParams) (domain.Note, error)
	GetNote(ctx context.Context, id string) (domain.Note, bool, error)
	SetLabel(ctx context.Context, noteID, name, value string) error
	// DeleteNote removes a note with its labels and revisions. Deleting a
	// missing note is not an error.
	DeleteNote(ctx context.Context, noteID string) error

	// CreateRevision snapshots the note's current state and returns it once
	// durably stored.
	CreateRevision(ctx context.Context, noteID string) (domain.Revision, error)
	ProtectRevisions(ctx context.Context, noteID string, protected bool) error
	ListRevisions(ctx context.Context, noteID string) ([]domain.Revision, error)

	// RunInTx applies every write made through tx or none of them.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	GetNote(ctx context.Context, id string) (domain.Note, bool, error)
	// SaveNote persists title, type, mime and the protected flag.
	SaveNote(ctx context.Context, note domain.Note) error
	SetContent(ctx context.Context, noteID string, content []byte) error
}

// OptionStore is implemented by stores that persist options next to notes.
type OptionStore interface {
	Option(ctx context.Context, name string) (string, bool, error)
	SetOption(ctx context.Context, name, value string) error
}

// ContentHash is the BLAKE3 digest recorded on revisions and used as ETag.
func ContentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
