// Package reverse reads a knowledge base back into node and edge tables.
//
// Items are read in sorted batches. Each item with exactly one type
// statement becomes a node, reformatted by its label, and every other
// statement becomes one edge row per reference. Edge endpoints are then
// remapped from knowledge-base external IDs to graph IDs.
package reverse

import (
	"context"
	"fmt"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/logging"
	"bioknowledge/kbsync/internal/refs"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
	"bioknowledge/kbsync/internal/xref"
)

// BatchSize is how many entities one read fetches.
const BatchSize = 20

// Result holds the reconstructed tables.
type Result struct {
	Nodes []table.Node
	Edges []table.Edge
}

type propertyInfo struct {
	label       string
	description string
	uri         string
	curie       string
}

// pendingEdge is an edge row whose endpoints are still external IDs.
type pendingEdge struct {
	row     table.Edge
	itemEnd bool // EndID names an item, not a literal
}

// Syncer runs one reverse sync. It is not safe for concurrent use.
type Syncer struct {
	client kb.Client
	log    *logging.Logger
	sum    *report.Summary

	xref  *xref.Resolver
	enc   refs.Encoder
	props map[string]propertyInfo

	dbxrefPID string
	typePID   string

	typeTargets     map[string]bool // items some item's type points at
	classCandidates []string        // untyped items keyed like a class
}

// New returns a Syncer reading through c. A nil log discards output and a nil
// summary starts a fresh "pull" summary.
func New(c kb.Client, log *logging.Logger, sum *report.Summary) *Syncer {
	if log == nil {
		log = logging.Nop()
	}
	if sum == nil {
		sum = report.New("pull")
	}
	return &Syncer{
		client: c,
		log:    log.With("component", "reverse"),
		sum:    sum,
		xref:   xref.New(),
		props:  make(map[string]propertyInfo),

		typeTargets: make(map[string]bool),
	}
}

// Summary returns the run's counters.
func (s *Syncer) Summary() *report.Summary { return s.sum }

// Run reads every indexed item and returns the node and edge tables.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	if err := s.loadIndexes(ctx); err != nil {
		return nil, err
	}
	if err := s.loadProperties(ctx); err != nil {
		return nil, err
	}

	var (
		res     Result
		pending []pendingEdge
	)
	for _, batch := range kb.Chunk(s.xref.IDs(kb.TypeItem), BatchSize) {
		items, err := s.client.GetEntities(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("reading items %s..%s: %w", batch[0], batch[len(batch)-1], err)
		}
		for _, item := range items {
			s.sum.Inc(report.ItemsRead)
			pending = append(pending, s.edgesOf(item)...)
			if n, ok := s.nodeOf(item); ok {
				res.Nodes = append(res.Nodes, n)
			}
		}
		s.log.Debug("read batch", "first", batch[0], "items", len(items))
	}

	s.settleClasses()
	res.Edges = s.remap(pending)
	s.sum.Add(report.NodesWritten, len(res.Nodes))
	s.sum.Add(report.EdgesWritten, len(res.Edges))
	s.log.Info("reverse sync done", "nodes", len(res.Nodes), "edges", len(res.Edges), "xref", s.xref.String())
	return &res, nil
}

// settleClasses counts an untyped, class-shaped item as a class only when
// some item is typed by it. The rest are untyped nodes.
func (s *Syncer) settleClasses() {
	for _, id := range s.classCandidates {
		if s.typeTargets[id] {
			s.sum.Inc(report.ClassesRead)
			continue
		}
		s.sum.Record(report.NodesUntyped, id)
		s.log.Warn("item does not have exactly one type", "item", id, "types", 0)
	}
}

func (s *Syncer) loadIndexes(ctx context.Context) error {
	if _, err := s.xref.LoadProperties(ctx, s.client); err != nil {
		return err
	}
	var ok bool
	if s.dbxrefPID, ok = s.xref.PropertyID(kb.DbXrefURI); !ok {
		return fmt.Errorf("external-ID property %s: %w", kb.DbXrefURI, kb.ErrNotFound)
	}
	if s.typePID, ok = s.xref.PropertyID(kb.TypeURI); !ok {
		return fmt.Errorf("type property %s: %w", kb.TypeURI, kb.ErrNotFound)
	}
	s.enc.TextProperty, _ = s.xref.PropertyID(kb.SupportingTextURI)
	s.enc.URLProperty, _ = s.xref.PropertyID(kb.ReferenceURLURI)
	return s.xref.LoadExternalIDs(ctx, s.client, s.dbxrefPID)
}

// loadProperties fetches label and description of every property holding an
// external ID.
func (s *Syncer) loadProperties(ctx context.Context) error {
	for _, batch := range kb.Chunk(s.xref.IDs(kb.TypeProperty), BatchSize) {
		props, err := s.client.GetEntities(ctx, batch)
		if err != nil {
			return fmt.Errorf("reading properties: %w", err)
		}
		for _, p := range props {
			uri, _ := s.xref.PropertyURI(p.ID)
			curie, _ := s.xref.GraphID(p.ID)
			s.props[p.ID] = propertyInfo{label: p.Label, description: p.Description, uri: uri, curie: curie}
		}
	}
	s.log.Debug("properties loaded", "count", len(s.props))
	return nil
}

// edgesOf returns one pending row per reference of every non-structural
// statement on item.
func (s *Syncer) edgesOf(item *kb.Entity) []pendingEdge {
	start, _ := s.xref.GraphID(item.ID)
	var out []pendingEdge
	for _, st := range item.Statements {
		if st.Property == s.dbxrefPID || st.Property == s.typePID {
			continue
		}
		prop, ok := s.props[st.Property]
		if !ok || prop.curie == "" {
			s.sum.Record(report.EdgesDropped, item.ID+" "+st.Property)
			s.log.Debug("statement on unindexed property", "item", item.ID, "property", st.Property)
			continue
		}
		row := table.Edge{
			StartID:             start,
			Type:                prop.curie,
			PropertyLabel:       prop.label,
			PropertyDescription: prop.description,
			PropertyURI:         prop.uri,
		}
		itemEnd := st.Value.Kind == kb.KindItemRef
		if itemEnd {
			end, ok := s.xref.GraphID(st.Value.Text)
			if !ok {
				s.sum.Record(report.EdgesDropped, start+" "+prop.curie+" "+st.Value.Text)
				continue
			}
			row.EndID = end
		} else {
			row.EndID = st.Value.Text
		}

		if len(st.References) == 0 {
			out = append(out, pendingEdge{row: row, itemEnd: itemEnd})
			continue
		}
		for _, ref := range st.References {
			r := row
			r.ReferenceSupportingText, r.ReferenceURI = s.enc.Decode(ref)
			out = append(out, pendingEdge{row: r, itemEnd: itemEnd})
		}
	}
	return out
}

// remap replaces external IDs with the graph IDs recorded while building
// nodes. Rows whose item endpoints have no node are dropped.
func (s *Syncer) remap(pending []pendingEdge) []table.Edge {
	out := make([]table.Edge, 0, len(pending))
	for _, p := range pending {
		row := p.row
		start, ok := s.xref.Canonical(row.StartID)
		if !ok {
			s.sum.Record(report.EdgesDropped, row.StartID+" "+row.Type+" "+row.EndID)
			continue
		}
		row.StartID = start
		if p.itemEnd {
			end, ok := s.xref.Canonical(row.EndID)
			if !ok {
				s.sum.Record(report.EdgesDropped, row.StartID+" "+row.Type+" "+row.EndID)
				continue
			}
			row.EndID = end
		}
		out = append(out, row)
	}
	return out
}
