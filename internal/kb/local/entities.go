package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"bioknowledge/kbsync/internal/kb"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EquivalentProperty returns the property whose own URI statement points at
// owl:equivalentProperty.
func (s *Store) EquivalentProperty(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `
		SELECT entity_id FROM statements
		WHERE property = entity_id AND value = ?
		LIMIT 1
	`, EquivalentPropertyURI).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("equivalent property: %w", kb.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// ValueIndex returns value -> entity ID for all statements of a property.
// When two entities share a value the higher-numbered one wins.
func (s *Store) ValueIndex(ctx context.Context, property string) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT st.value, st.entity_id
		FROM statements st JOIN entities e ON e.id = st.entity_id
		WHERE st.property = ?
		ORDER BY e.type, e.num
	`, property)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]string)
	for rows.Next() {
		var value, id string
		if err := rows.Scan(&value, &id); err != nil {
			return nil, err
		}
		index[value] = id
	}
	return index, rows.Err()
}

// scanEntity scans an entity row. The row must have all 6 entity columns in standard order.
func scanEntity(scanner interface{ Scan(dest ...any) error }) (*kb.Entity, error) {
	var (
		e       kb.Entity
		typ     string
		aliases string
	)
	if err := scanner.Scan(&e.ID, &typ, &e.Datatype, &e.Label, &e.Description, &aliases); err != nil {
		return nil, err
	}
	e.Type = kb.EntityType(typ)
	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return nil, fmt.Errorf("decoding aliases of %s: %w", e.ID, err)
	}
	if len(e.Aliases) == 0 {
		e.Aliases = nil
	}
	return &e, nil
}

// GetEntities returns the requested entities in request order.
func (s *Store) GetEntities(ctx context.Context, ids []string) ([]*kb.Entity, error) {
	out := make([]*kb.Entity, 0, len(ids))
	for _, id := range ids {
		row := s.conn.QueryRowContext(ctx, `
			SELECT id, type, datatype, label, description, aliases
			FROM entities WHERE id = ?
		`, id)
		e, err := scanEntity(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if e.Statements, err = s.statements(ctx, id); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) statements(ctx context.Context, id string) ([]kb.Statement, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT property, kind, value, refs FROM statements
		WHERE entity_id = ? ORDER BY ord
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kb.Statement
	for rows.Next() {
		var (
			st   kb.Statement
			kind int
			refs string
		)
		if err := rows.Scan(&st.Property, &kind, &st.Value.Text, &refs); err != nil {
			return nil, err
		}
		st.Value.Kind = kb.ValueKind(kind)
		if err := json.Unmarshal([]byte(refs), &st.References); err != nil {
			return nil, fmt.Errorf("decoding references on %s: %w", id, err)
		}
		if len(st.References) == 0 {
			st.References = nil
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CreateEntity inserts a new entity with its statements and returns its ID.
func (s *Store) CreateEntity(ctx context.Context, e *kb.Entity) (string, error) {
	if err := s.checkValues(e.Statements); err != nil {
		return "", err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id, err := insertEntity(ctx, tx, e)
	if err != nil {
		return "", fmt.Errorf("creating entity: %w", err)
	}
	for i, st := range e.Statements {
		if err := insertStatement(ctx, tx, id, i, st); err != nil {
			return "", fmt.Errorf("creating entity %s: %w", id, err)
		}
	}
	return id, tx.Commit()
}

// WriteStatements saves statements on an existing entity in one transaction.
func (s *Store) WriteStatements(ctx context.Context, id string, statements []kb.Statement) error {
	if s.MaxStatementsPerEdit > 0 && len(statements) > s.MaxStatementsPerEdit {
		return &kb.WriteError{
			Code: kb.CodeFailedSave,
			Info: fmt.Sprintf("edit carries %d statements, limit is %d", len(statements), s.MaxStatementsPerEdit),
		}
	}
	if err := s.checkValues(statements); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ord) + 1, 0) FROM statements WHERE entity_id = ?
	`, id).Scan(&next)
	if err != nil {
		return err
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return &kb.WriteError{Code: kb.CodeNoSuchEntity, Info: id}
	}

	for _, st := range statements {
		refs, err := json.Marshal(st.References)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE statements SET refs = ?
			WHERE entity_id = ? AND property = ? AND kind = ? AND value = ?
		`, string(refs), id, st.Property, int(st.Value.Kind), st.Value.Text)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}
		if err := insertStatement(ctx, tx, id, next, st); err != nil {
			return err
		}
		next++
	}
	return tx.Commit()
}

// checkValues mirrors the remote per-value length limit.
func (s *Store) checkValues(statements []kb.Statement) error {
	if s.MaxValueLength <= 0 {
		return nil
	}
	for _, st := range statements {
		if utf8.RuneCountInString(st.Value.Text) > s.MaxValueLength {
			return &kb.WriteError{Code: kb.CodeModificationFailed, Info: "value too long: " + truncate(st.Value.Text, 40)}
		}
		for _, ref := range st.References {
			for _, sn := range ref.Snaks {
				if utf8.RuneCountInString(sn.Value.Text) > s.MaxValueLength {
					return &kb.WriteError{Code: kb.CodeModificationFailed, Info: "reference value too long: " + truncate(sn.Value.Text, 40)}
				}
			}
		}
	}
	return nil
}

func insertEntity(ctx context.Context, tx execer, e *kb.Entity) (string, error) {
	typ := e.Type
	if typ == "" {
		typ = kb.TypeItem
	}
	prefix := "Q"
	if typ == kb.TypeProperty {
		prefix = "P"
	}
	var num int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(num), 0) + 1 FROM entities WHERE type = ?
	`, string(typ)).Scan(&num)
	if err != nil {
		return "", err
	}
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	rawAliases, err := json.Marshal(aliases)
	if err != nil {
		return "", err
	}
	id := fmt.Sprintf("%s%d", prefix, num)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, type, num, datatype, label, description, aliases)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(typ), num, e.Datatype, e.Label, e.Description, string(rawAliases))
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertStatement(ctx context.Context, tx execer, id string, ord int, st kb.Statement) error {
	refs := st.References
	if refs == nil {
		refs = []kb.Reference{}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO statements (entity_id, ord, property, kind, value, refs)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, ord, st.Property, int(st.Value.Kind), st.Value.Text, string(raw))
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
