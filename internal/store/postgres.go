package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func OpenPostgres(ctx context.Context, dsn string) (*SQLNoteStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := newSQLNoteStore(db, postgresDialect)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open picks a backend by driver name.
func Open(ctx context.Context, driver, dsn string) (*SQLNoteStore, error) {
	switch driver {
	case "postgres":
		return OpenPostgres(ctx, dsn)
	case "sqlite", "":
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
