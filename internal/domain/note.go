package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	NoteTypeImage = "image"
	NoteTypeText  = "text"

	MimeUnknown = "unknown"

	LabelOriginalFileName = "originalFileName"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrParentIDRequired = errors.New("parent note id is required")
)

type Note struct {
	ID          string
	ParentID    string
	Title       string
	Type        string
	Mime        string
	Content     []byte
	IsProtected bool
	Labels      map[string]string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Label returns the value of the named label and whether it is set.
func (n Note) Label(name string) (string, bool) {
	value, ok := n.Labels[name]
	return value, ok
}

type CreateNoteParams struct {
	ParentID    string
	Title       string
	Type        string
	Mime        string
	Content     []byte
	IsProtected bool
}

func (p CreateNoteParams) Validate() error {
	if strings.TrimSpace(p.ParentID) == "" {
		return ErrParentIDRequired
	}
	if strings.TrimSpace(p.Type) == "" {
		return errors.New("note type is required")
	}
	if strings.TrimSpace(p.Mime) == "" {
		return errors.New("note mime is required")
	}
	return nil
}

// Revision is a copy of a note's state taken before an in-place mutation.
type Revision struct {
	ID          string
	NoteID      string
	Title       string
	Type        string
	Mime        string
	Content     []byte
	ContentHash string
	IsProtected bool
	CreatedAt   time.Time
}
