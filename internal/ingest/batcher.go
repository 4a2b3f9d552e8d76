package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/screenager/vexd/internal/embed"
	"github.com/screenager/vexd/internal/hnsw"
)

// DefaultInterval is the batcher's tick period.
const DefaultInterval = 500 * time.Millisecond

// Batcher is the queue's single consumer. Each tick it drains whatever is
// pending, embeds the whole batch with no locks held, and inserts the
// results in FIFO order under one index lock, so a concurrent search sees
// either all of a batch or none of it.
//
// A failed embedding drops the batch: the service does not retry, clients
// resubmit.
type Batcher struct {
	queue    *Queue
	index    *hnsw.Index
	embedder embed.Embedder
	interval time.Duration
	log      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	batches  int
	inserted int
	failed   int
}

// NewBatcher wires a batcher to its queue, index, and embedder. interval <= 0
// selects DefaultInterval. Call Start to begin draining.
func NewBatcher(queue *Queue, index *hnsw.Index, embedder embed.Embedder, interval time.Duration, log *slog.Logger) *Batcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		queue:    queue,
		index:    index,
		embedder: embedder,
		interval: interval,
		log:      log,
	}
}

// Start launches the background worker.
func (b *Batcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop halts the worker. An in-flight batch finishes; anything still queued
// is discarded with the process.
func (b *Batcher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Stats reports batches processed, documents inserted, and batches dropped.
func (b *Batcher) Stats() (batches, inserted, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches, b.inserted, b.failed
}

func (b *Batcher) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Detach from cancellation so a Stop during the batch lets it finish.
			b.flush(context.WithoutCancel(ctx))
		}
	}
}

// flush processes one tick: drain, embed, insert.
func (b *Batcher) flush(ctx context.Context) {
	batch := b.queue.Drain()
	if len(batch) == 0 {
		return
	}

	vecs, err := b.embedder.EmbedBatch(ctx, batch)
	if err != nil {
		b.log.Error("embed batch failed, dropping batch", "size", len(batch), "err", err)
		b.mu.Lock()
		b.failed++
		b.mu.Unlock()
		return
	}

	ids, err := b.index.InsertBatch(batch, vecs)
	if err != nil {
		b.log.Error("insert batch failed", "size", len(batch), "inserted", len(ids), "err", err)
		b.mu.Lock()
		b.failed++
		b.inserted += len(ids)
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.batches++
	b.inserted += len(ids)
	b.mu.Unlock()
	b.log.Debug("batch indexed", "size", len(batch), "first_id", ids[0])
}
