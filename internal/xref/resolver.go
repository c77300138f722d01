// Package xref maps graph identifiers (CURIEs) to knowledge-base entity IDs
// and back for the lifetime of one sync run.
package xref

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"bioknowledge/kbsync/internal/kb"
)

// SampleSize bounds how many unresolved identifiers are kept for reporting.
const SampleSize = 10

var punctuation = regexp.MustCompile("[\\\\!@#$%^&*;,./<>?|'`_+]")

// Resolver is the run-scoped cross-reference table. It is the only writer of
// its maps; transformers register newly created entities through it.
type Resolver struct {
	byExt  map[string]string // external-ID literal -> entity ID
	byKB   map[string]string // entity ID -> external-ID literal
	titles map[string]string // graph ID -> display title

	propByURI map[string]string
	uriByProp map[string]string

	aliases map[string]string // packed external ID -> graph ID

	unresolved int
	sample     []string
}

func New() *Resolver {
	return &Resolver{
		byExt:     make(map[string]string),
		byKB:      make(map[string]string),
		titles:    make(map[string]string),
		propByURI: make(map[string]string),
		uriByProp: make(map[string]string),
		aliases:   make(map[string]string),
	}
}

// LoadProperties indexes every property by its equivalent-property URI and
// returns the equivalent property's own ID.
func (r *Resolver) LoadProperties(ctx context.Context, c kb.Client) (string, error) {
	equiv, err := c.EquivalentProperty(ctx)
	if err != nil {
		return "", fmt.Errorf("finding equivalent property: %w", err)
	}
	index, err := c.ValueIndex(ctx, equiv)
	if err != nil {
		return "", fmt.Errorf("loading property index: %w", err)
	}
	for uri, pid := range index {
		r.RegisterProperty(uri, pid)
	}
	return equiv, nil
}

// LoadExternalIDs indexes every entity by its external-ID literal under
// property pid.
func (r *Resolver) LoadExternalIDs(ctx context.Context, c kb.Client, pid string) error {
	index, err := c.ValueIndex(ctx, pid)
	if err != nil {
		return fmt.Errorf("loading external-ID index: %w", err)
	}
	for ext, id := range index {
		r.Register(ext, id)
	}
	return nil
}

// SetTitles installs the graph ID -> display title table used by the last
// resolution fallback.
func (r *Resolver) SetTitles(titles map[string]string) {
	r.titles = titles
}

// Register records that the entity id holds external-ID literal ext.
func (r *Resolver) Register(ext, id string) {
	if old, ok := r.byExt[ext]; ok && old != id {
		delete(r.byKB, old)
	}
	r.byExt[ext] = id
	r.byKB[id] = ext
}

// Lookup is the direct external-ID index lookup.
func (r *Resolver) Lookup(ext string) (string, bool) {
	id, ok := r.byExt[ext]
	return id, ok
}

// Resolve maps a graph ID to an entity ID. It tries the ID itself, the
// placeholder form "NA (id)", then the node's display title verbatim and
// with punctuation stripped. A miss is counted, not an error.
func (r *Resolver) Resolve(graphID string) (string, bool) {
	if id, ok := r.resolve(graphID); ok {
		return id, true
	}
	r.unresolved++
	if len(r.sample) < SampleSize {
		r.sample = append(r.sample, graphID)
	}
	return "", false
}

func (r *Resolver) resolve(graphID string) (string, bool) {
	if id, ok := r.byExt[graphID]; ok {
		return id, true
	}
	if id, ok := r.byExt["NA ("+graphID+")"]; ok {
		return id, true
	}
	title, ok := r.titles[graphID]
	if !ok || title == "" {
		return "", false
	}
	if id, ok := r.byExt[title]; ok {
		return id, true
	}
	if id, ok := r.byExt[punctuation.ReplaceAllString(title, "")]; ok {
		return id, true
	}
	return "", false
}

// GraphID returns the external-ID literal held by an entity.
func (r *Resolver) GraphID(id string) (string, bool) {
	ext, ok := r.byKB[id]
	return ext, ok
}

// IDs returns the sorted entity IDs of one type that hold an external ID.
func (r *Resolver) IDs(t kb.EntityType) []string {
	var out []string
	for id := range r.byKB {
		if kb.TypeOf(id) == t {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RegisterProperty records the URI of a property.
func (r *Resolver) RegisterProperty(uri, pid string) {
	r.propByURI[uri] = pid
	r.uriByProp[pid] = uri
}

func (r *Resolver) PropertyID(uri string) (string, bool) {
	pid, ok := r.propByURI[uri]
	return pid, ok
}

func (r *Resolver) PropertyURI(pid string) (string, bool) {
	uri, ok := r.uriByProp[pid]
	return uri, ok
}

// Alias records that edges naming packed should name graphID instead.
func (r *Resolver) Alias(packed, graphID string) {
	r.aliases[packed] = graphID
}

// Canonical returns the graph ID recorded for a packed external ID.
func (r *Resolver) Canonical(packed string) (string, bool) {
	id, ok := r.aliases[packed]
	return id, ok
}

// Unresolved returns how many Resolve calls missed and a sample of the
// identifiers involved.
func (r *Resolver) Unresolved() (int, []string) {
	return r.unresolved, append([]string(nil), r.sample...)
}

// Len returns the number of indexed external IDs.
func (r *Resolver) Len() int {
	return len(r.byExt)
}

// String summarizes the table for debug logging.
func (r *Resolver) String() string {
	return fmt.Sprintf("xref{ids=%d properties=%d aliases=%d unresolved=%d}",
		len(r.byExt), len(r.propByURI), len(r.aliases), r.unresolved)
}
