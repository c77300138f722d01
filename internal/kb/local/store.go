// Package local implements kb.Client on a SQLite file. It stands in for a
// remote Wikibase during offline runs and tests: same identifier scheme
// (P/Q IDs), same write failure codes, same value indexes.
package local

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"bioknowledge/kbsync/internal/kb"
)

// EquivalentPropertyURI is the URI the bootstrap property is registered under.
const EquivalentPropertyURI = "http://www.w3.org/2002/07/owl#equivalentProperty"

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	num         INTEGER NOT NULL,
	datatype    TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	aliases     TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS statements (
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	ord       INTEGER NOT NULL,
	property  TEXT NOT NULL,
	kind      INTEGER NOT NULL,
	value     TEXT NOT NULL,
	refs      TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (entity_id, ord)
);
CREATE INDEX IF NOT EXISTS statements_property_idx ON statements(property, value);
`

// Store is a SQLite-backed knowledge base.
type Store struct {
	conn *sql.DB
	Path string

	// MaxStatementsPerEdit makes WriteStatements fail with failed-save when
	// one edit carries more statements. Zero means unlimited.
	MaxStatementsPerEdit int
	// MaxValueLength rejects longer string values with modification-failed.
	MaxValueLength int
}

var _ kb.Client = (*Store)(nil)

// Open opens a SQLite knowledge base with WAL mode and foreign keys enabled,
// creating the schema and the equivalent-property bootstrap entity if needed.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and the
	// engine is single-threaded anyway.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{conn: conn, Path: path, MaxValueLength: 400}
	if err := s.bootstrap(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// bootstrap creates the equivalent-property property if the store is empty.
// A real Wikibase has it provisioned out of band.
func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.EquivalentProperty(ctx); err == nil {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id, err := insertEntity(ctx, tx, &kb.Entity{
		Type:     kb.TypeProperty,
		Datatype: kb.DatatypeURL,
		Label:    "equivalent property",
	})
	if err != nil {
		return fmt.Errorf("bootstrapping equivalent property: %w", err)
	}
	st := kb.Statement{Property: id, Value: kb.URL(EquivalentPropertyURI)}
	if err := insertStatement(ctx, tx, id, 0, st); err != nil {
		return fmt.Errorf("bootstrapping equivalent property: %w", err)
	}
	return tx.Commit()
}
