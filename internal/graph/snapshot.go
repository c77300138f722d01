package graph

import (
	"sort"

	"bioknowledge/kbsync/internal/table"
)

// NodeInfo is a lightweight node representation decoupled from table rows
type NodeInfo struct {
	ID    string
	Title string
	Label string
}

// EdgeInfo is one edge row reduced to its endpoints
type EdgeInfo struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Predicate string `json:"predicate"`
	Literal   bool   `json:"literal,omitempty"` // target is a literal value, not a node
}

// GraphSnapshot holds the input graph with precomputed adjacency lists.
// Edges whose endpoints are missing from the node table are kept apart in
// Dangling and do not contribute to adjacency.
type GraphSnapshot struct {
	Nodes      map[string]*NodeInfo
	Edges      []EdgeInfo
	Dangling   []EdgeInfo
	Duplicates []string            // node IDs seen more than once
	Adj        map[string][]string // undirected
	OutAdj     map[string][]string // directed: source -> targets
	InAdj      map[string][]string // directed: target -> sources
}

// NewSnapshot builds a GraphSnapshot from node and edge rows. The first row
// for an ID wins.
func NewSnapshot(nodes []table.Node, edges []table.Edge) *GraphSnapshot {
	s := &GraphSnapshot{
		Nodes:  make(map[string]*NodeInfo, len(nodes)),
		Adj:    make(map[string][]string, len(nodes)),
		OutAdj: make(map[string][]string),
		InAdj:  make(map[string][]string),
	}

	dup := make(map[string]bool)
	for _, n := range nodes {
		if _, ok := s.Nodes[n.ID]; ok {
			if !dup[n.ID] {
				s.Duplicates = append(s.Duplicates, n.ID)
				dup[n.ID] = true
			}
			continue
		}
		s.Nodes[n.ID] = &NodeInfo{ID: n.ID, Title: n.PrefLabel, Label: n.Label}
		s.Adj[n.ID] = nil // ensure entry exists
	}
	sort.Strings(s.Duplicates)

	for _, e := range edges {
		info := EdgeInfo{
			Source:    e.StartID,
			Target:    e.EndID,
			Predicate: e.Type,
			Literal:   e.Type == table.ExactMatch,
		}
		_, srcOK := s.Nodes[info.Source]
		_, dstOK := s.Nodes[info.Target]
		if !srcOK || (!info.Literal && !dstOK) {
			s.Dangling = append(s.Dangling, info)
			continue
		}
		s.Edges = append(s.Edges, info)
		if info.Literal {
			continue
		}
		s.Adj[info.Source] = append(s.Adj[info.Source], info.Target)
		s.Adj[info.Target] = append(s.Adj[info.Target], info.Source)
		s.OutAdj[info.Source] = append(s.OutAdj[info.Source], info.Target)
		s.InAdj[info.Target] = append(s.InAdj[info.Target], info.Source)
	}
	return s
}

// NodeIDs returns a sorted list of all node IDs (for deterministic output)
func (s *GraphSnapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
