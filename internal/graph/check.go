// Package graph inspects the input node and edge tables before a sync: it
// counts what is there and finds what a forward run would have to drop.
package graph

import (
	"sort"

	"bioknowledge/kbsync/internal/table"
)

// CheckConfig holds check parameters
type CheckConfig struct {
	HubThreshold int
	TopN         int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *CheckConfig {
	return &CheckConfig{
		HubThreshold: 15,
		TopN:         10,
	}
}

// CheckReport is the preflight result for one pair of tables.
type CheckReport struct {
	Topology       *TopologyReport `json:"topology"`
	Labels         map[string]int  `json:"labels"`
	Predicates     map[string]int  `json:"predicates"`
	DuplicateIDs   []string        `json:"duplicate_ids"`
	UnlabeledCount int             `json:"unlabeled_count"`
	DanglingCount  int             `json:"dangling_count"`
	Dangling       []EdgeInfo      `json:"dangling"`
	SelfLoops      int             `json:"self_loops"`
}

// OK reports whether every edge can be resolved against the node table and
// node IDs are unique.
func (r *CheckReport) OK() bool {
	return r.DanglingCount == 0 && len(r.DuplicateIDs) == 0
}

// SortedLabels returns the label keys in order, for stable output.
func (r *CheckReport) SortedLabels() []string {
	return sortedKeys(r.Labels)
}

// SortedPredicates returns the predicate keys in order.
func (r *CheckReport) SortedPredicates() []string {
	return sortedKeys(r.Predicates)
}

// Check builds a snapshot of the tables and reports on it.
func Check(nodes []table.Node, edges []table.Edge, config *CheckConfig) *CheckReport {
	if config == nil {
		config = DefaultConfig()
	}
	snap := NewSnapshot(nodes, edges)

	r := &CheckReport{
		Topology:      ComputeTopology(snap, config.HubThreshold, config.TopN),
		Labels:        make(map[string]int),
		Predicates:    make(map[string]int),
		DuplicateIDs:  snap.Duplicates,
		DanglingCount: len(snap.Dangling),
	}
	for _, n := range snap.Nodes {
		if n.Label == "" {
			r.UnlabeledCount++
			continue
		}
		r.Labels[n.Label]++
	}
	for _, e := range edges {
		r.Predicates[e.Type]++
	}
	for _, e := range snap.Edges {
		if !e.Literal && e.Source == e.Target {
			r.SelfLoops++
		}
	}
	r.Dangling = snap.Dangling
	if len(r.Dangling) > config.TopN {
		r.Dangling = r.Dangling[:config.TopN]
	}
	return r
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
