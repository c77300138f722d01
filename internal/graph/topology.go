package graph

import "sort"

// HubNode is a node with high connectivity
type HubNode struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Degree    int    `json:"degree"`
	InDegree  int    `json:"in_degree"`
	OutDegree int    `json:"out_degree"`
}

// DegreeBucket is one bucket in the degree histogram
type DegreeBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TopologyReport contains topology analysis results
type TopologyReport struct {
	TotalNodes        int            `json:"total_nodes"`
	TotalEdges        int            `json:"total_edges"`
	NumComponents     int            `json:"num_components"`
	LargestComponent  int            `json:"largest_component"`
	SmallestComponent int            `json:"smallest_component"`
	OrphanCount       int            `json:"orphan_count"`
	OrphanIDs         []string       `json:"orphan_ids"`
	DegreeHistogram   []DegreeBucket `json:"degree_histogram"`
	Hubs              []HubNode      `json:"hubs"`
}

// ComputeTopology analyzes graph topology: components, orphans, degree distribution, hubs
func ComputeTopology(snap *GraphSnapshot, hubThreshold, topN int) *TopologyReport {
	if len(snap.Nodes) == 0 {
		return &TopologyReport{DegreeHistogram: defaultHistogram()}
	}

	nodeIDs := snap.NodeIDs()
	uf := NewUnionFind(nodeIDs)
	for _, e := range snap.Edges {
		if !e.Literal {
			uf.Union(e.Source, e.Target)
		}
	}
	sizes := uf.Sizes()

	// Orphans: no node-to-node edge at all. Literal-only nodes count.
	var orphans []string
	for _, id := range nodeIDs {
		if len(snap.Adj[id]) == 0 {
			orphans = append(orphans, id)
		}
	}
	orphanCount := len(orphans)
	if len(orphans) > topN {
		orphans = orphans[:topN]
	}

	histogram := defaultHistogram()
	var hubs []HubNode
	for _, id := range nodeIDs {
		degree := len(snap.Adj[id])
		histogram[degreeBucket(degree)].Count++
		if degree > hubThreshold {
			hubs = append(hubs, HubNode{
				ID:        id,
				Title:     snap.Nodes[id].Title,
				Degree:    degree,
				InDegree:  len(snap.InAdj[id]),
				OutDegree: len(snap.OutAdj[id]),
			})
		}
	}
	sort.SliceStable(hubs, func(i, j int) bool { return hubs[i].Degree > hubs[j].Degree })
	if len(hubs) > topN {
		hubs = hubs[:topN]
	}

	return &TopologyReport{
		TotalNodes:        len(snap.Nodes),
		TotalEdges:        len(snap.Edges),
		NumComponents:     len(sizes),
		LargestComponent:  sizes[0],
		SmallestComponent: sizes[len(sizes)-1],
		OrphanCount:       orphanCount,
		OrphanIDs:         orphans,
		DegreeHistogram:   histogram,
		Hubs:              hubs,
	}
}

func defaultHistogram() []DegreeBucket {
	return []DegreeBucket{
		{Label: "0"}, {Label: "1"}, {Label: "2-3"},
		{Label: "4-7"}, {Label: "8-15"}, {Label: "16-31"}, {Label: "32+"},
	}
}

func degreeBucket(degree int) int {
	switch {
	case degree == 0:
		return 0
	case degree == 1:
		return 1
	case degree <= 3:
		return 2
	case degree <= 7:
		return 3
	case degree <= 15:
		return 4
	case degree <= 31:
		return 5
	default:
		return 6
	}
}
