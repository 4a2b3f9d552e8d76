// Package hnsw implements the layered navigable small-world index behind
// vexd. The graph has a fixed stack of layers; a new document is linked into
// layers 0..l where l is drawn from a fixed discrete distribution, and search
// descends greedily from the top layer's entry node while filling a bounded
// result heap.
//
// Parameters (fixed):
//
//	NumLayers = 4
//	P         = [0.50, 0.30, 0.15, 0.05]  (level distribution)
//	M         = [4, 3, 2, 1]              (new edges per layer on insert)
package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/screenager/vexd/internal/vecmath"
)

// NumLayers is the height of the layer stack. Layer 0 is the bottom,
// layer NumLayers-1 the top.
const NumLayers = 4

var (
	// levelProbs is the level distribution. The exponential family
	// exp(-l/mL)*(1-exp(-1/mL)) gives a similar shape; the fixed table is
	// authoritative.
	levelProbs = [NumLayers]float64{0.50, 0.30, 0.15, 0.05}

	// fanout caps the number of NEW edges created per layer on insert. It
	// does not bound steady-state degree: neighbours of later inserts keep
	// all their edges.
	fanout = [NumLayers]int{4, 3, 2, 1}
)

// ErrDimensionMismatch is returned when an embedding's length disagrees with
// the dimension established by the first inserted document.
var ErrDimensionMismatch = errors.New("hnsw: embedding dimension mismatch")

// Document is an indexed piece of text. Documents are immutable once
// inserted and live until the index is dropped.
type Document struct {
	ID        uint32
	Content   string
	Embedding []float32
}

// Result is a single search hit.
type Result struct {
	ID      uint32
	Score   float32 // cosine similarity to the query
	Content string
}

// Stats summarizes the index state.
type Stats struct {
	Documents  int
	NextID     uint32
	Dim        int
	LayerNodes [NumLayers]int
}

// Index owns all documents and the layer stack. All operations take the
// index mutex for their full duration, so the graph is never observed
// mid-insert.
type Index struct {
	mu        sync.Mutex
	documents map[uint32]*Document
	nextID    uint32
	layers    [NumLayers]*GraphLayer
	dim       int // embedding dimension, fixed by the first insert
	rng       *rand.Rand
}

// New creates an empty index with NumLayers empty layers.
func New() *Index {
	ix := &Index{
		documents: make(map[uint32]*Document),
		rng:       rand.New(rand.NewSource(42)),
	}
	for l := range ix.layers {
		ix.layers[l] = newGraphLayer()
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.documents)
}

// Stats returns a snapshot of index counters.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	s := Stats{
		Documents: len(ix.documents),
		NextID:    ix.nextID,
		Dim:       ix.dim,
	}
	for l, layer := range ix.layers {
		s.LayerNodes[l] = layer.Len()
	}
	return s
}

// sampleLevel draws a maximum level from the fixed distribution: the
// smallest l whose cumulative probability strictly exceeds a uniform draw.
func (ix *Index) sampleLevel() int {
	u := ix.rng.Float64()
	var cum float64
	for l := 0; l < NumLayers; l++ {
		cum += levelProbs[l]
		if cum > u {
			return l
		}
	}
	return NumLayers - 1
}

// Insert adds a document and links it into the graph. It returns the
// assigned id, which is the previous value of the internal counter.
func (ix *Index) Insert(content string, embedding []float32) (uint32, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.insertLocked(content, embedding)
}

// InsertBatch inserts documents in order under a single lock acquisition.
// This is the batcher's write path: a search sees either all of the batch
// or none of it.
func (ix *Index) InsertBatch(contents []string, embeddings [][]float32) ([]uint32, error) {
	if len(contents) != len(embeddings) {
		return nil, fmt.Errorf("hnsw: %d contents for %d embeddings", len(contents), len(embeddings))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := make([]uint32, 0, len(contents))
	for i := range contents {
		id, err := ix.insertLocked(contents[i], embeddings[i])
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// insertLocked implements the insert algorithm. Callers hold ix.mu.
func (ix *Index) insertLocked(content string, embedding []float32) (uint32, error) {
	if len(ix.documents) == 0 {
		ix.dim = len(embedding)
	} else if len(embedding) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(embedding), ix.dim)
	}

	id := ix.nextID
	level := ix.sampleLevel()

	// The first document ignores the sampled level: it spans the full stack
	// and becomes the top layer's entry point.
	if len(ix.documents) == 0 {
		level = NumLayers - 1
		ix.layers[NumLayers-1].SetEntry(id)
	}

	for l := 0; l <= level; l++ {
		layer := ix.layers[l]

		// Snapshot the layer population before the new node is linked; the
		// node never ranks itself.
		candidates := layer.nodeIDs()
		layer.AddNode(id)

		type scored struct {
			id  uint32
			sim float32
		}
		ranked := make([]scored, len(candidates))
		for i, c := range candidates {
			ranked[i] = scored{id: c, sim: vecmath.Cosine(embedding, ix.documents[c].Embedding)}
		}
		// Stable sort over the ascending-id snapshot: ties keep insertion
		// order, lower id first.
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

		m := fanout[l]
		if m > len(ranked) {
			m = len(ranked)
		}
		for _, c := range ranked[:m] {
			layer.AddNeighbor(id, c.id)
		}
	}

	ix.documents[id] = &Document{ID: id, Content: content, Embedding: embedding}
	ix.nextID++
	return id, nil
}

// Search returns up to k documents ordered by similarity to query,
// descending. An empty index or k <= 0 yields no results.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.documents) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	entry, ok := ix.layers[NumLayers-1].Entry()
	if !ok {
		return nil, fmt.Errorf("hnsw: non-empty index with no top-layer entry")
	}

	// best holds the k best hits seen anywhere during the descent: a
	// min-heap so the worst survivor is evictable in O(log k).
	best := make(bestHeap, 0, k)
	visited := make(map[uint32]bool)

	offer := func(id uint32, sim float32) {
		if len(best) < k {
			heap.Push(&best, hit{id: id, sim: sim})
			return
		}
		if sim > best[0].sim {
			best[0] = hit{id: id, sim: sim}
			heap.Fix(&best, 0)
		}
	}

	// Only the top layer's entry is guaranteed; lower layers usually carry
	// no entry of their own, so the best node of each layer seeds the next.
	currentEntry := entry
	for l := NumLayers - 1; l >= 0; l-- {
		layer := ix.layers[l]
		if e, ok := layer.Entry(); ok {
			currentEntry = e
		}

		current := currentEntry
		bestSim := ix.score(query, current)
		if !visited[current] {
			visited[current] = true
			offer(current, bestSim)
		}

		for {
			var (
				bestNb    uint32
				bestNbSim float32
				haveNb    bool
			)
			for _, n := range layer.Neighbors(current) {
				s := ix.score(query, n)
				if !visited[n] {
					visited[n] = true
					offer(n, s)
				}
				if !haveNb || s > bestNbSim {
					haveNb = true
					bestNb = n
					bestNbSim = s
				}
			}
			if !haveNb || bestNbSim <= bestSim {
				currentEntry = current
				break
			}
			current = bestNb
			bestSim = bestNbSim
		}
	}

	out := make([]Result, len(best))
	for i, h := range best {
		out[i] = Result{ID: h.id, Score: h.sim, Content: ix.documents[h.id].Content}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// score computes the similarity between the query and a stored document.
func (ix *Index) score(query []float32, id uint32) float32 {
	return vecmath.Cosine(query, ix.documents[id].Embedding)
}

// hit is a (id, similarity) pair in the search heap.
type hit struct {
	id  uint32
	sim float32
}

// bestHeap is a bounded min-heap: the root is the worst hit kept so far.
// Among equal similarities the higher id sits at the root, so lower ids
// survive eviction, matching the final ordering's tie-break.
type bestHeap []hit

func (h bestHeap) Len() int { return len(h) }
func (h bestHeap) Less(i, j int) bool {
	if h[i].sim != h[j].sim {
		return h[i].sim < h[j].sim
	}
	return h[i].id > h[j].id
}
func (h bestHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *bestHeap) Push(x interface{}) { *h = append(*h, x.(hit)) }
func (h *bestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Validate checks the structural invariants of the graph: symmetric,
// irreflexive, duplicate-free adjacency; no dangling ids; a node present in
// a layer is present in every layer below it; all embeddings share one
// dimension. It exists for tests.
func (ix *Index) Validate() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for l, layer := range ix.layers {
		for id, nbs := range layer.adjacency {
			if _, ok := ix.documents[id]; !ok {
				return fmt.Errorf("layer %d: node %d has no document", l, id)
			}
			for li := 0; li < l; li++ {
				if _, ok := ix.layers[li].adjacency[id]; !ok {
					return fmt.Errorf("node %d in layer %d but missing from layer %d", id, l, li)
				}
			}
			seen := make(map[uint32]bool, len(nbs))
			for _, n := range nbs {
				if n == id {
					return fmt.Errorf("layer %d: node %d links to itself", l, id)
				}
				if seen[n] {
					return fmt.Errorf("layer %d: duplicate edge %d->%d", l, id, n)
				}
				seen[n] = true
				back := false
				for _, r := range layer.adjacency[n] {
					if r == id {
						back = true
						break
					}
				}
				if !back {
					return fmt.Errorf("layer %d: edge %d->%d has no reverse", l, id, n)
				}
			}
		}
	}
	for id, doc := range ix.documents {
		if len(doc.Embedding) != ix.dim {
			return fmt.Errorf("document %d: dimension %d, index has %d", id, len(doc.Embedding), ix.dim)
		}
	}
	if len(ix.documents) > 0 {
		if _, ok := ix.layers[NumLayers-1].Entry(); !ok {
			return fmt.Errorf("non-empty index with no top-layer entry")
		}
	}
	return nil
}
