package table

// Prepared holds the node table after preparation plus what preparation did.
type Prepared struct {
	Nodes         []Node
	Duplicates    int // rows dropped because their id was already seen
	Invalid       int // rows dropped because they have no id
	Untitled      int // nodes that fell back to id as preflabel
	Disambiguated int // nodes whose preflabel got " (id)" appended
}

// PrepareNodes deduplicates nodes by id (first wins), fills blank titles
// from the id, and disambiguates colliding titles by appending the id in
// parentheses. The disambiguation is one-way.
func PrepareNodes(in []Node) Prepared {
	var p Prepared
	seen := make(map[string]bool, len(in))
	for _, n := range in {
		if n.ID == "" {
			p.Invalid++
			continue
		}
		if seen[n.ID] {
			p.Duplicates++
			continue
		}
		seen[n.ID] = true
		if n.PrefLabel == "" {
			n.PrefLabel = n.ID
			p.Untitled++
		}
		p.Nodes = append(p.Nodes, n)
	}

	counts := make(map[string]int, len(p.Nodes))
	for _, n := range p.Nodes {
		counts[n.PrefLabel]++
	}
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if counts[n.PrefLabel] > 1 {
			n.PrefLabel = n.PrefLabel + " (" + n.ID + ")"
			p.Disambiguated++
		}
	}
	return p
}

// Titles returns id -> preflabel for the given nodes.
func Titles(nodes []Node) map[string]string {
	m := make(map[string]string, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n.PrefLabel
	}
	return m
}
