package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/screenager/vexd/internal/embed"
	"github.com/screenager/vexd/internal/hnsw"
)

// failingEmbedder always errors, exercising the drop-batch path.
type failingEmbedder struct{}

func (failingEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) Dim() int { return 4 }

func TestBatcherInsertsInOrder(t *testing.T) {
	queue := NewQueue()
	index := hnsw.New()
	b := NewBatcher(queue, index, embed.NewHash(8), 10*time.Millisecond, nil)

	queue.Enqueue("first")
	queue.Enqueue("second")
	queue.Enqueue("third")

	b.Start()
	defer b.Stop()

	require.Eventually(t, func() bool { return index.Len() == 3 },
		2*time.Second, 10*time.Millisecond, "batch never landed in the index")

	// FIFO within the batch: ids follow enqueue order.
	emb := embed.NewHash(8)
	for want, content := range []string{"first", "second", "third"} {
		q, err := emb.EmbedOne(context.Background(), content)
		require.NoError(t, err)
		results, err := index.Search(q, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		require.Equal(t, content, results[0].Content)
		require.Equal(t, uint32(want), results[0].ID)
	}
	require.NoError(t, index.Validate())
	_, inserted, failed := b.Stats()
	require.Equal(t, 3, inserted)
	require.Zero(t, failed)
}

func TestBatcherDropsFailedBatch(t *testing.T) {
	queue := NewQueue()
	index := hnsw.New()
	b := NewBatcher(queue, index, failingEmbedder{}, 10*time.Millisecond, nil)

	queue.Enqueue("doomed")
	b.Start()
	defer b.Stop()

	require.Eventually(t, func() bool {
		_, _, failed := b.Stats()
		return failed >= 1
	}, 2*time.Second, 10*time.Millisecond, "failure never recorded")

	require.Zero(t, index.Len(), "failed batch must not be inserted")
	require.Zero(t, queue.Len(), "drained items are dropped, not requeued")
}

func TestBatcherIdleTicks(t *testing.T) {
	queue := NewQueue()
	index := hnsw.New()
	b := NewBatcher(queue, index, embed.NewHash(8), 5*time.Millisecond, nil)

	b.Start()
	time.Sleep(50 * time.Millisecond)
	b.Stop()

	batches, inserted, failed := b.Stats()
	require.Zero(t, batches)
	require.Zero(t, inserted)
	require.Zero(t, failed)
}

func TestBatcherStopCompletes(t *testing.T) {
	queue := NewQueue()
	index := hnsw.New()
	b := NewBatcher(queue, index, embed.NewHash(8), 10*time.Millisecond, nil)

	b.Start()
	queue.Enqueue("late")
	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
