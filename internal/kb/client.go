package kb

import (
	"context"
	"errors"
	"fmt"
)

// Client is the remote knowledge-base surface the sync engine depends on.
type Client interface {
	// EquivalentProperty returns the ID of the property that links every
	// property to its URI. All other indexes hang off it.
	EquivalentProperty(ctx context.Context) (string, error)

	// ValueIndex returns value -> entity ID for every entity holding a
	// statement with the given property.
	ValueIndex(ctx context.Context, property string) (map[string]string, error)

	// GetEntities fetches full entities. Missing IDs are omitted.
	GetEntities(ctx context.Context, ids []string) ([]*Entity, error)

	// CreateEntity creates a new item or property and returns its ID.
	CreateEntity(ctx context.Context, e *Entity) (string, error)

	// WriteStatements saves statements on an existing entity in one edit. A
	// statement whose property and value already exist on the entity replaces
	// that statement's references instead of adding a duplicate.
	WriteStatements(ctx context.Context, id string, statements []Statement) error
}

// GetEntity fetches one entity, returning ErrNotFound when it does not exist.
func GetEntity(ctx context.Context, c Client, id string) (*Entity, error) {
	ents, err := c.GetEntities(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return ents[0], nil
}

var (
	// ErrAuth means the remote rejected the credentials. Fatal.
	ErrAuth = errors.New("knowledge base authentication failed")
	// ErrUnavailable means the remote could not be reached. Fatal.
	ErrUnavailable = errors.New("knowledge base unavailable")
	// ErrNotFound means a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
)

// Machine-readable write error codes.
const (
	CodeFailedSave         = "failed-save"
	CodePayloadTooLarge    = "request-too-large"
	CodeModificationFailed = "modification-failed"
	CodeNoSuchEntity       = "no-such-entity"
	CodeBadToken           = "badtoken"
)

// WriteError is a structured failure returned by a write call.
type WriteError struct {
	Code string
	Info string
}

func (e *WriteError) Error() string {
	if e.Info == "" {
		return "write failed: " + e.Code
	}
	return fmt.Sprintf("write failed: %s: %s", e.Code, e.Info)
}

// IsPayloadTooLarge reports whether err is a write error that a smaller
// request could avoid.
func IsPayloadTooLarge(err error) bool {
	var we *WriteError
	if !errors.As(err, &we) {
		return false
	}
	return we.Code == CodeFailedSave || we.Code == CodePayloadTooLarge
}

// Chunk splits ids into consecutive batches of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n:n])
		ids = ids[n:]
	}
	return out
}
