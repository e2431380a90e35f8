package domain

import (
	"fmt"
	"net/url"
	"time"
)

// UploadedAsset is the raw request input. It is consumed exactly once.
type UploadedAsset struct {
	Data         []byte
	OriginalName string
}

// ImageCommit describes the detached unit of work that transforms an upload
// and writes it into an existing note.
type ImageCommit struct {
	NoteID          string    `json:"note_id"`
	FileName        string    `json:"file_name"`
	OriginalName    string    `json:"original_name"`
	Data            []byte    `json:"data"`
	ShrinkRequested bool      `json:"shrink_requested"`
	RequestedAt     time.Time `json:"requested_at"`
}

// ImageURL is the path under which a committed image note is served.
func ImageURL(noteID, fileName string) string {
	return fmt.Sprintf("api/images/%s/%s", noteID, url.PathEscape(fileName))
}
