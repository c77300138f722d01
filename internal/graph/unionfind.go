package graph

import "sort"

// UnionFind tracks connected components over a fixed set of string IDs,
// with path halving and union by size. Unknown IDs are ignored.
type UnionFind struct {
	index  map[string]int
	parent []int
	size   []int
}

// NewUnionFind creates a UnionFind where each id is its own component
func NewUnionFind(ids []string) *UnionFind {
	uf := &UnionFind{
		index:  make(map[string]int, len(ids)),
		parent: make([]int, 0, len(ids)),
		size:   make([]int, 0, len(ids)),
	}
	for _, id := range ids {
		if _, ok := uf.index[id]; ok {
			continue
		}
		uf.index[id] = len(uf.parent)
		uf.parent = append(uf.parent, len(uf.parent))
		uf.size = append(uf.size, 1)
	}
	return uf
}

func (uf *UnionFind) root(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// Connected reports whether a and b are in the same component.
func (uf *UnionFind) Connected(a, b string) bool {
	ia, okA := uf.index[a]
	ib, okB := uf.index[b]
	return okA && okB && uf.root(ia) == uf.root(ib)
}

// Union merges the components containing a and b. Returns true if they were separate.
func (uf *UnionFind) Union(a, b string) bool {
	ia, okA := uf.index[a]
	ib, okB := uf.index[b]
	if !okA || !okB {
		return false
	}
	ra, rb := uf.root(ia), uf.root(ib)
	if ra == rb {
		return false
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	return true
}

// Sizes returns the component sizes, largest first.
func (uf *UnionFind) Sizes() []int {
	var sizes []int
	for i := range uf.parent {
		if uf.root(i) == i {
			sizes = append(sizes, uf.size[i])
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}
