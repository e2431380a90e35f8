package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelnote/internal/domain"
	"github.com/dunamismax/pixelnote/internal/id"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02 15:04:05.000000000"

const noteSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	type TEXT NOT NULL,
	mime TEXT NOT NULL,
	content %[1]s,
	is_protected BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS note_labels (
	note_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (note_id, name)
);
CREATE TABLE IF NOT EXISTS revisions (
	id TEXT PRIMARY KEY,
	note_id TEXT NOT NULL,
	title TEXT NOT NULL,
	type TEXT NOT NULL,
	mime TEXT NOT NULL,
	content %[1]s,
	content_hash TEXT NOT NULL,
	is_protected BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revisions_note ON revisions (note_id, created_at);
CREATE TABLE IF NOT EXISTS options (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type dialect struct {
	name     string
	blobType string
	numbered bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", blobType: "BLOB"}
	postgresDialect = dialect{name: "postgres", blobType: "BYTEA", numbered: true}
)

// rebind rewrites ? placeholders into $n for drivers that need them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLNoteStore is the database/sql note store shared by the SQLite and
// Postgres backends.
type SQLNoteStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLNoteStore(db *sql.DB, d dialect) *SQLNoteStore {
	return &SQLNoteStore{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLNoteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(noteSchemaSQL, s.dialect.blobType)); err != nil {
		return fmt.Errorf("ensure notes schema: %w", err)
	}

	stamp := formatTime(s.now())
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO notes (id, parent_id, title, type, mime, content, is_protected, created_at, modified_at)
		 VALUES (?, '', 'root', ?, 'text/html', ?, FALSE, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		RootNoteID,
		domain.NoteTypeText,
		[]byte{},
		stamp,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("ensure root note: %w", err)
	}
	return nil
}

func (s *SQLNoteStore) Close() error {
	return s.db.Close()
}

func (s *SQLNoteStore) CreateNote(ctx context.Context, params domain.CreateNoteParams) (domain.Note, error) {
	if err := params.Validate(); err != nil {
		return domain.Note{}, err
	}

	var parentExists bool
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT TRUE FROM notes WHERE id = ?`), params.ParentID).Scan(&parentExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Note{}, fmt.Errorf("parent %s: %w", params.ParentID, domain.ErrNoteNotFound)
		}
		return domain.Note{}, fmt.Errorf("query parent note: %w", err)
	}

	now := s.now()
	note := domain.Note{
		ID:          id.New(),
		ParentID:    params.ParentID,
		Title:       params.Title,
		Type:        params.Type,
		Mime:        params.Mime,
		Content:     params.Content,
		IsProtected: params.IsProtected,
		Labels:      map[string]string{},
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if note.Content == nil {
		note.Content = []byte{}
	}

	_, err = s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO notes (id, parent_id, title, type, mime, content, is_protected, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		note.ID,
		note.ParentID,
		note.Title,
		note.Type,
		note.Mime,
		note.Content,
		note.IsProtected,
		formatTime(note.CreatedAt),
		formatTime(note.ModifiedAt),
	)
	if err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *SQLNoteStore) GetNote(ctx context.Context, noteID string) (domain.Note, bool, error) {
	return s.getNote(ctx, s.db, noteID)
}

func (s *SQLNoteStore) getNote(ctx context.Context, q queryer, noteID string) (domain.Note, bool, error) {
	row := q.QueryRowContext(
		ctx,
		s.dialect.rebind(`SELECT id, parent_id, title, type, mime, content, is_protected, created_at, modified_at
		 FROM notes
		 WHERE id = ?`),
		noteID,
	)

	var (
		note              domain.Note
		created, modified string
	)
	if err := row.Scan(
		&note.ID,
		&note.ParentID,
		&note.Title,
		&note.Type,
		&note.Mime,
		&note.Content,
		&note.IsProtected,
		&created,
		&modified,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Note{}, false, nil
		}
		return domain.Note{}, false, fmt.Errorf("query note: %w", err)
	}
	note.CreatedAt = parseTime(created)
	note.ModifiedAt = parseTime(modified)

	labels, err := s.labels(ctx, q, noteID)
	if err != nil {
		return domain.Note{}, false, err
	}
	note.Labels = labels
	return note, true, nil
}

func (s *SQLNoteStore) labels(ctx context.Context, q queryer, noteID string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(`SELECT name, value FROM note_labels WHERE note_id = ?`), noteID)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	labels := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

func (s *SQLNoteStore) SetLabel(ctx context.Context, noteID, name, value string) error {
	if _, ok, err := s.GetNote(ctx, noteID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}

	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO note_labels (note_id, name, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT (note_id, name) DO UPDATE SET value = excluded.value`),
		noteID,
		name,
		value,
	)
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", name, err)
	}
	return nil
}

func (s *SQLNoteStore) DeleteNote(ctx context.Context, noteID string) error {
	if noteID == RootNoteID {
		return ErrRootNote
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"note_labels", "revisions"} {
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM `+table+` WHERE note_id = ?`), noteID); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, noteID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM notes WHERE id = ?`), noteID); err != nil {
			return fmt.Errorf("delete note %s: %w", noteID, err)
		}
		return nil
	})
}

func (s *SQLNoteStore) CreateRevision(ctx context.Context, noteID string) (domain.Revision, error) {
	var rev domain.Revision
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		note, ok, err := s.getNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
		}

		rev = domain.Revision{
			ID:          id.New(),
			NoteID:      note.ID,
			Title:       note.Title,
			Type:        note.Type,
			Mime:        note.Mime,
			Content:     note.Content,
			ContentHash: ContentHash(note.Content),
			IsProtected: note.IsProtected,
			CreatedAt:   s.now(),
		}
		_, err = tx.ExecContext(
			ctx,
			s.dialect.rebind(`INSERT INTO revisions (id, note_id, title, type, mime, content, content_hash, is_protected, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			rev.ID,
			rev.NoteID,
			rev.Title,
			rev.Type,
			rev.Mime,
			nonNil(rev.Content),
			rev.ContentHash,
			rev.IsProtected,
			formatTime(rev.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Revision{}, err
	}
	return rev, nil
}

func (s *SQLNoteStore) ProtectRevisions(ctx context.Context, noteID string, protected bool) error {
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`UPDATE revisions SET is_protected = ? WHERE note_id = ?`),
		protected,
		noteID,
	)
	if err != nil {
		return fmt.Errorf("protect revisions: %w", err)
	}
	return nil
}

func (s *SQLNoteStore) ListRevisions(ctx context.Context, noteID string) ([]domain.Revision, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.dialect.rebind(`SELECT id, note_id, title, type, mime, content, content_hash, is_protected, created_at
		 FROM revisions
		 WHERE note_id = ?
		 ORDER BY created_at, id`),
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revisions []domain.Revision
	for rows.Next() {
		var (
			rev     domain.Revision
			created string
		)
		if err := rows.Scan(
			&rev.ID,
			&rev.NoteID,
			&rev.Title,
			&rev.Type,
			&rev.Mime,
			&rev.Content,
			&rev.ContentHash,
			&rev.IsProtected,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.CreatedAt = parseTime(created)
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revisions, nil
}

func (s *SQLNoteStore) Option(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT value FROM options WHERE name = ?`), name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query option: %w", err)
	}
	return value, true, nil
}

func (s *SQLNoteStore) SetOption(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO options (name, value)
		 VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`),
		name,
		value,
	)
	if err != nil {
		return fmt.Errorf("upsert option %s: %w", name, err)
	}
	return nil
}

func (s *SQLNoteStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqlTx{store: s, tx: tx})
	})
}

func (s *SQLNoteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	store *SQLNoteStore
	tx    *sql.Tx
}

func (t *sqlTx) GetNote(ctx context.Context, noteID string) (domain.Note, bool, error) {
	return t.store.getNote(ctx, t.tx, noteID)
}

func (t *sqlTx) SaveNote(ctx context.Context, note domain.Note) error {
	res, err := t.tx.ExecContext(
		ctx,
		t.store.dialect.rebind(`UPDATE notes
		 SET title = ?, type = ?, mime = ?, is_protected = ?, modified_at = ?
		 WHERE id = ?`),
		note.Title,
		note.Type,
		note.Mime,
		note.IsProtected,
		formatTime(t.store.now()),
		note.ID,
	)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return requireAffected(res, note.ID)
}

func (t *sqlTx) SetContent(ctx context.Context, noteID string, content []byte) error {
	res, err := t.tx.ExecContext(
		ctx,
		t.store.dialect.rebind(`UPDATE notes SET content = ?, modified_at = ? WHERE id = ?`),
		nonNil(content),
		formatTime(t.store.now()),
		noteID,
	)
	if err != nil {
		return fmt.Errorf("update note content: %w", err)
	}
	return requireAffected(res, noteID)
}

func requireAffected(res sql.Result, noteID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %s: %w", noteID, domain.ErrNoteNotFound)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
