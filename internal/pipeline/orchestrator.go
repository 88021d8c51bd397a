// Package pipeline composes extraction, chunking, embedding, persistence,
// and generation into the ingest and ask workflows.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/citadel-rag/citadel/internal/chunker"
	"github.com/citadel-rag/citadel/internal/embed"
	"github.com/citadel-rag/citadel/internal/llm"
	"github.com/citadel-rag/citadel/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when the ingestion queue is
	// saturated.
	ErrQueueFull = errors.New("ingestion queue is full")

	// ErrStopped is returned by Submit after Stop has begun; the queue is
	// closed and accepts no further work.
	ErrStopped = errors.New("ingestion pipeline is stopped")
)

// ingestTask is a queued work item: the upload's name and raw bytes.
// Workers own everything else, including their store connections.
type ingestTask struct {
	Filename string
	Data     []byte
}

// Orchestrator runs ingestion on a bounded worker pool and serves the
// search/ask read paths.
type Orchestrator struct {
	store     *store.Postgres
	embedder  embed.Embedder
	generator *llm.Generator
	splitter  *chunker.Splitter
	log       *slog.Logger

	queue  chan ingestTask
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// stopMu orders Submit against Stop so a request racing shutdown gets
	// ErrStopped instead of a send on a closed channel.
	stopMu  sync.Mutex
	stopped bool
}

func NewOrchestrator(
	st *store.Postgres,
	embedder embed.Embedder,
	generator *llm.Generator,
	splitter *chunker.Splitter,
	workers, queueSize int,
	log *slog.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	o := &Orchestrator{
		store:     st,
		embedder:  embedder,
		generator: generator,
		splitter:  splitter,
		log:       log,
		queue:     make(chan ingestTask, queueSize),
	}
	o.startWorkers(workers)
	return o
}

func (o *Orchestrator) startWorkers(workers int) {
	workerCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	for range workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case task, ok := <-o.queue:
					if !ok {
						return
					}
					o.runIngest(workerCtx, task)
				}
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight ingestions. Safe to call
// more than once.
func (o *Orchestrator) Stop() {
	o.stopMu.Lock()
	if o.stopped {
		o.stopMu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.stopMu.Unlock()

	o.wg.Wait()
	if o.cancel != nil {
		o.cancel()
	}
}

// Submit enqueues a background ingestion. The caller gets no completion
// signal: a failed ingestion simply never produces a queryable document.
func (o *Orchestrator) Submit(filename string, data []byte) error {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	select {
	case o.queue <- ingestTask{Filename: filename, Data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Store exposes the retrieval store for the API's admin handlers.
func (o *Orchestrator) Store() *store.Postgres {
	return o.store
}

// runIngest executes one background ingestion. Failures are terminal and
// logged only; the store's atomic write guarantees nothing partial remains.
func (o *Orchestrator) runIngest(ctx context.Context, task ingestTask) {
	result, err := o.IngestFile(ctx, task.Filename, task.Data)
	if err != nil {
		o.log.Error("ingestion failed", "filename", task.Filename, "error", err)
		return
	}
	o.log.Info("ingestion complete",
		"filename", task.Filename,
		"document_id", result.DocumentID,
		"chunks", result.ChunkCount,
		"duplicate", result.Duplicate,
	)
}
