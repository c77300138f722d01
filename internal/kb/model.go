// Package kb defines the knowledge-base object model shared by the sync
// engine and its remote clients: entities, statements with references, and
// the tagged value variant statements carry.
package kb

import "strings"

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindLiteral ValueKind = iota // plain string
	KindItemRef                  // reference to another entity by ID
	KindURL                      // URL string
)

func (k ValueKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindItemRef:
		return "item"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Datatype returns the Wikibase property datatype that holds values of this kind.
func (k ValueKind) Datatype() string {
	switch k {
	case KindItemRef:
		return DatatypeItem
	case KindURL:
		return DatatypeURL
	default:
		return DatatypeString
	}
}

// Value is one statement or reference value.
type Value struct {
	Kind ValueKind `json:"kind"`
	Text string    `json:"text"` // literal text, URL, or entity ID
}

func Literal(s string) Value { return Value{Kind: KindLiteral, Text: s} }
func ItemRef(id string) Value { return Value{Kind: KindItemRef, Text: id} }
func URL(s string) Value      { return Value{Kind: KindURL, Text: s} }

// Property datatypes
const (
	DatatypeString = "string"
	DatatypeURL    = "url"
	DatatypeItem   = "wikibase-item"
)

// EntityType distinguishes items from properties.
type EntityType string

const (
	TypeItem     EntityType = "item"
	TypeProperty EntityType = "property"
)

// TypeOf guesses the entity type from a Wikibase-style ID (P... or Q...).
func TypeOf(id string) EntityType {
	if strings.HasPrefix(id, "P") {
		return TypeProperty
	}
	return TypeItem
}

// Snak is a single property/value pair inside a reference.
type Snak struct {
	Property string `json:"property"`
	Value    Value  `json:"value"`
}

// Reference is one provenance block attached to a statement.
type Reference struct {
	Snaks []Snak `json:"snaks"`
}

// Values returns the texts of all snaks with the given property, in order.
func (r Reference) Values(property string) []string {
	var out []string
	for _, s := range r.Snaks {
		if s.Property == property {
			out = append(out, s.Value.Text)
		}
	}
	return out
}

// Statement is one subject-predicate-object assertion on an entity. The
// subject is the entity the statement belongs to.
type Statement struct {
	Property   string      `json:"property"`
	Value      Value       `json:"value"`
	References []Reference `json:"references,omitempty"`
}

// Entity is an item or property with its terms and statements.
type Entity struct {
	ID          string      `json:"id"`
	Type        EntityType  `json:"type"`
	Datatype    string      `json:"datatype,omitempty"` // properties only
	Label       string      `json:"label"`
	Description string      `json:"description,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
	Statements  []Statement `json:"statements,omitempty"`
}

// StatementsFor returns the entity's statements for one property.
func (e *Entity) StatementsFor(property string) []Statement {
	var out []Statement
	for _, s := range e.Statements {
		if s.Property == property {
			out = append(out, s)
		}
	}
	return out
}
