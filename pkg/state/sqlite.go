package state

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/resolver"
)

const schema = `
CREATE TABLE IF NOT EXISTS installed (
	format       TEXT NOT NULL,
	name         TEXT NOT NULL,
	repo         TEXT NOT NULL,
	version      TEXT NOT NULL,
	installed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (format, name, repo)
);
`

// SQLite persists the installed set in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the state database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Serialized access: the store is a single-writer state file, not a
	// concurrent database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Snapshot(ctx context.Context) (resolver.Installed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT format, name, repo, version FROM installed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installed := make(resolver.Installed)
	for rows.Next() {
		var id pkg.ID
		var version string
		if err := rows.Scan(&id.Format, &id.Name, &id.Repo, &version); err != nil {
			return nil, err
		}
		installed[id] = pkg.Version(version)
	}
	return installed, rows.Err()
}

func (s *SQLite) Commit(ctx context.Context, ops []pkg.Operation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case pkg.OpInstall, pkg.OpUpgrade:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO installed (format, name, repo, version) VALUES (?, ?, ?, ?)
				 ON CONFLICT (format, name, repo) DO UPDATE SET
				   version = excluded.version,
				   installed_at = CURRENT_TIMESTAMP`,
				op.ID.Format, op.ID.Name, op.ID.Repo, string(op.Version))
		case pkg.OpRemove:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM installed WHERE format = ? AND name = ? AND repo = ?`,
				op.ID.Format, op.ID.Name, op.ID.Repo)
		default:
			err = errors.New(errors.ErrCodeUnsupported,
				"unknown operation kind %q", op.Kind)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error { return s.db.Close() }

var _ Store = (*SQLite)(nil)
