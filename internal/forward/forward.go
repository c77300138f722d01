// Package forward writes a node/edge graph into a knowledge base: structural
// properties first, then one property per predicate, one class item per node
// label, one item per node, and finally the edges as statements grouped by
// subject.
package forward

import (
	"context"
	"errors"
	"fmt"

	"bioknowledge/kbsync/internal/graph"
	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/logging"
	"bioknowledge/kbsync/internal/refs"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
	"bioknowledge/kbsync/internal/xref"
)

// ErrSplitExhausted means a single-statement write still failed with a
// payload-size error, so the size was never the problem.
var ErrSplitExhausted = errors.New("write failed at a single statement")

// Options control a forward run.
type Options struct {
	// Force creates items even when their external ID is already indexed.
	Force bool
	// Simulate runs every step but keeps writes from reaching the remote.
	Simulate bool
}

// Syncer runs one forward sync. It is not safe for concurrent use.
type Syncer struct {
	client kb.Client
	log    *logging.Logger
	sum    *report.Summary
	opts   Options

	xref *xref.Resolver
	enc  refs.Encoder

	equivPID   string
	dbxrefPID  string
	exactPID   string
	typePID    string
	predicates map[string]string // predicate CURIE -> property ID
}

// New returns a Syncer writing through c. A nil log discards output and a nil
// summary starts a fresh "push" summary.
func New(c kb.Client, log *logging.Logger, sum *report.Summary, opts Options) *Syncer {
	if log == nil {
		log = logging.Nop()
	}
	if sum == nil {
		sum = report.New("push")
	}
	if opts.Simulate {
		c = kb.Simulate(c)
		sum.Simulate = true
	}
	return &Syncer{
		client:     c,
		log:        log.With("component", "forward"),
		sum:        sum,
		opts:       opts,
		xref:       xref.New(),
		predicates: make(map[string]string),
	}
}

// Summary returns the run's counters.
func (s *Syncer) Summary() *report.Summary { return s.sum }

// Resolver returns the run's cross-reference table.
func (s *Syncer) Resolver() *xref.Resolver { return s.xref }

// Run syncs nodes and edges. Per-record failures are counted in the summary;
// the returned error is fatal (authentication, connectivity, or a write that
// fails at a single statement).
func (s *Syncer) Run(ctx context.Context, nodes []table.Node, edges []table.Edge) error {
	prep := table.PrepareNodes(nodes)
	s.sum.Add(report.NodesDuplicate, prep.Duplicates)
	s.sum.Add(report.NodesInvalid, prep.Invalid)
	s.sum.Add(report.NodesUntitled, prep.Untitled)
	s.sum.Add(report.NodesDisambiguated, prep.Disambiguated)
	s.preflight(prep.Nodes, edges)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"bootstrap", s.bootstrap},
		{"predicates", func(ctx context.Context) error { return s.createPredicates(ctx, edges) }},
		{"classes", func(ctx context.Context) error { return s.createClasses(ctx, prep.Nodes) }},
		{"items", func(ctx context.Context) error { return s.createItems(ctx, prep.Nodes) }},
		{"edges", func(ctx context.Context) error { return s.createEdges(ctx, edges) }},
	}
	for _, step := range steps {
		s.log.Info("starting step", "step", step.name)
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	n, sample := s.xref.Unresolved()
	s.sum.Add(report.Unresolved, n)
	s.sum.Samples[report.Unresolved] = sample
	s.log.Info("forward sync done", "xref", s.xref.String())
	return nil
}

// preflight logs what the graph check finds. It never stops the run.
func (s *Syncer) preflight(nodes []table.Node, edges []table.Edge) {
	r := graph.Check(nodes, edges, nil)
	s.log.Info("input graph",
		"nodes", r.Topology.TotalNodes,
		"edges", r.Topology.TotalEdges,
		"components", r.Topology.NumComponents,
	)
	if r.DanglingCount > 0 {
		s.log.Warn("edges reference nodes missing from the node table",
			"count", r.DanglingCount, "sample", r.Dangling)
	}
	if r.SelfLoops > 0 {
		s.log.Warn("self-loop edges in input", "count", r.SelfLoops)
	}
}

// fatal reports whether a write error must abort the run. Structured write
// failures are per-record; auth, connectivity and context errors abort.
func fatal(err error) bool {
	var we *kb.WriteError
	return !errors.As(err, &we)
}
