package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// randomVec generates a random unit vector of dimension d.
func randomVec(rng *rand.Rand, d int) []float32 {
	v := make([]float32, d)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= float32(norm)
	}
	return v
}

func TestIDsDenseAndMonotonic(t *testing.T) {
	ix := New()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		id, err := ix.Insert(fmt.Sprintf("doc %d", i), randomVec(rng, 16))
		require.NoError(t, err)
		require.Equal(t, uint32(i), id, "insert %d returned wrong id", i)
	}
	require.Equal(t, 50, ix.Len())
	require.Equal(t, uint32(50), ix.Stats().NextID)
}

func TestFirstInsertSpansAllLayers(t *testing.T) {
	ix := New()
	id, err := ix.Insert("first", []float32{1, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, uint32(0), id)

	entry, ok := ix.layers[NumLayers-1].Entry()
	require.True(t, ok, "top layer must have an entry after first insert")
	require.Equal(t, uint32(0), entry)

	for l := 0; l < NumLayers; l++ {
		_, present := ix.layers[l].adjacency[0]
		require.True(t, present, "first document missing from layer %d", l)
	}
}

func TestInvariantsAfterManyInserts(t *testing.T) {
	ix := New()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		_, err := ix.Insert(fmt.Sprintf("doc %d", i), randomVec(rng, 32))
		require.NoError(t, err)
	}
	require.NoError(t, ix.Validate())
}

func TestFanoutBoundsNewEdges(t *testing.T) {
	// Every insert may add at most M[l] edges from the new node at layer l,
	// so the new node's own degree right after insert is capped by M[l].
	ix := New()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		id, err := ix.Insert(fmt.Sprintf("doc %d", i), randomVec(rng, 16))
		require.NoError(t, err)
		if i == 0 {
			continue
		}
		for l := 0; l < NumLayers; l++ {
			nbs, present := ix.layers[l].adjacency[id]
			if !present {
				continue
			}
			require.LessOrEqual(t, len(nbs), fanout[l],
				"node %d has %d fresh edges at layer %d", id, len(nbs), l)
		}
	}
}

func TestSearchEmptyAndZeroK(t *testing.T) {
	ix := New()
	results, err := ix.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results, "empty index must return no results")

	_, err = ix.Insert("doc", []float32{1, 0})
	require.NoError(t, err)
	results, err = ix.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, results, "k=0 must return no results")
}

func TestSearchSingleDocument(t *testing.T) {
	ix := New()
	v := []float32{0.5, 0.5, 0, 0}
	_, err := ix.Insert("only", v)
	require.NoError(t, err)

	results, err := ix.Search(v, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(0), results[0].ID)
	require.Equal(t, "only", results[0].Content)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearchTopKOrdering(t *testing.T) {
	ix := New()
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 60; i++ {
		_, err := ix.Insert(fmt.Sprintf("doc %d", i), randomVec(rng, 24))
		require.NoError(t, err)
	}

	q := randomVec(rng, 24)
	results, err := ix.Search(q, 5)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 5)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		require.GreaterOrEqual(t, results[i-1].Score, results[i].Score,
			"results not sorted by similarity descending")
	}
}

func TestSearchBasisVectors(t *testing.T) {
	// a, b orthogonal; c halfway between them. Querying a should rank a
	// first and c second.
	ix := New()
	inv := float32(1.0 / math.Sqrt2)
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	c := []float32{inv, inv, 0, 0}

	for _, doc := range []struct {
		content string
		vec     []float32
	}{{"a", a}, {"b", b}, {"c", c}} {
		_, err := ix.Insert(doc.content, doc.vec)
		require.NoError(t, err)
	}

	results, err := ix.Search(a, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Content)
	require.Equal(t, "c", results[1].Content)
}

func TestSearchPerturbedAxes(t *testing.T) {
	// Ten documents along distinct axes with slightly growing magnitude;
	// cosine ignores magnitude, so querying axis 0 must return document 0.
	const dim = 16
	ix := New()
	for i := 0; i < 10; i++ {
		v := make([]float32, dim)
		v[i] = 1 + float32(i)*0.001
		_, err := ix.Insert(fmt.Sprintf("axis %d", i), v)
		require.NoError(t, err)
	}

	q := make([]float32, dim)
	q[0] = 1
	results, err := ix.Search(q, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "axis 0", results[0].Content)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestDimensionMismatch(t *testing.T) {
	ix := New()
	_, err := ix.Insert("doc", []float32{1, 0, 0})
	require.NoError(t, err)

	_, err = ix.Insert("bad", []float32{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search([]float32{1, 0, 0, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertBatchOrder(t *testing.T) {
	ix := New()
	rng := rand.New(rand.NewSource(5))
	contents := []string{"one", "two", "three", "four"}
	vecs := make([][]float32, len(contents))
	for i := range vecs {
		vecs[i] = randomVec(rng, 8)
	}

	ids, err := ix.InsertBatch(contents, vecs)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2, 3}, ids)
	require.NoError(t, ix.Validate())
}

func TestInsertBatchLengthMismatch(t *testing.T) {
	ix := New()
	_, err := ix.InsertBatch([]string{"a", "b"}, [][]float32{{1, 0}})
	require.Error(t, err)
}

func TestSampleLevelDistribution(t *testing.T) {
	ix := New()
	counts := make([]int, NumLayers)
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[ix.sampleLevel()]++
	}
	for l, p := range levelProbs {
		got := float64(counts[l]) / draws
		require.InDelta(t, p, got, 0.02, "level %d frequency %f, want ~%f", l, got, p)
	}
}
