package hnsw

import "sort"

// GraphLayer is one level of the navigable small-world stack: an undirected
// adjacency structure over document ids, with an optional entry node that
// search starts from.
type GraphLayer struct {
	entry     uint32
	hasEntry  bool
	adjacency map[uint32][]uint32
}

// newGraphLayer returns an empty layer.
func newGraphLayer() *GraphLayer {
	return &GraphLayer{adjacency: make(map[uint32][]uint32)}
}

// SetEntry records id as the layer's search entry point.
func (l *GraphLayer) SetEntry(id uint32) {
	l.entry = id
	l.hasEntry = true
}

// Entry returns the layer's entry node, if one has been set.
func (l *GraphLayer) Entry() (uint32, bool) {
	return l.entry, l.hasEntry
}

// AddNode ensures id is present in the layer, with an empty neighbour list
// if it wasn't there before. Idempotent.
func (l *GraphLayer) AddNode(id uint32) {
	if _, ok := l.adjacency[id]; !ok {
		l.adjacency[id] = nil
	}
}

// AddNeighbor links a and b in both directions, creating either endpoint if
// missing. Self-links and duplicate edges are ignored.
func (l *GraphLayer) AddNeighbor(a, b uint32) {
	if a == b {
		return
	}
	l.addArc(a, b)
	l.addArc(b, a)
}

// addArc appends to into from's neighbour list unless already present.
func (l *GraphLayer) addArc(from, to uint32) {
	nbs := l.adjacency[from]
	for _, n := range nbs {
		if n == to {
			return
		}
	}
	l.adjacency[from] = append(nbs, to)
}

// Neighbors returns from's neighbour list. The returned slice is owned by
// the layer and must not be mutated.
func (l *GraphLayer) Neighbors(from uint32) []uint32 {
	return l.adjacency[from]
}

// Len returns the number of nodes present in the layer.
func (l *GraphLayer) Len() int {
	return len(l.adjacency)
}

// nodeIDs returns all node ids in the layer in ascending order, i.e. in
// insertion order since ids are assigned monotonically.
func (l *GraphLayer) nodeIDs() []uint32 {
	ids := make([]uint32, 0, len(l.adjacency))
	for id := range l.adjacency {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
