package images

import (
	"context"

	"github.com/dunamismax/pixelnote/internal/pipeline"
)

// CommitResult describes what the detached unit wrote into the note.
type CommitResult struct {
	NoteID        string
	FileName      string
	Format        pipeline.ImageFormat
	Mime          string
	Outcome       pipeline.Outcome
	OriginalBytes int
	StoredBytes   int

	// TaskID is set instead of the fields above when the unit was handed to
	// the queue; the worker owns the write from then on.
	TaskID string
}

// Queued reports whether the result only confirms an enqueue.
func (r CommitResult) Queued() bool {
	return r.TaskID != ""
}

// Commit resolves once the content of a saved or updated image is durable, or
// once the attempt to make it durable failed.
type Commit struct {
	noteID string
	done   chan struct{}
	result CommitResult
	err    error
}

func newCommit(noteID string) *Commit {
	return &Commit{noteID: noteID, done: make(chan struct{})}
}

func (c *Commit) resolve(result CommitResult, err error) {
	c.result = result
	c.err = err
	close(c.done)
}

func (c *Commit) NoteID() string {
	return c.noteID
}

// Done is closed when the commit has finished, successfully or not.
func (c *Commit) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the commit finishes or ctx ends. Cancelling ctx only stops
// the wait, never the commit.
func (c *Commit) Wait(ctx context.Context) (CommitResult, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return CommitResult{}, ctx.Err()
	}
}

// Err returns the commit error, or nil while the commit is still running.
func (c *Commit) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
