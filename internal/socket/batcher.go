// File: internal/socket/batcher.go
// Quiz Engine - Socket Manager: write-batching queue

package socket

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WriteOp is one store-mutating operation enqueued by a protocol
// handler. Kind groups operations within a flush; Exec performs the actual store call and is supplied by the
// caller so the batcher stays store-agnostic.
type WriteOp struct {
	ID   string
	Kind string
	Exec func() error
}

// Batcher queues WriteOps and flushes them when the queue reaches
// batchSize or every batchTimeout, whichever comes first. A single
// operation's failure is logged and counted; it never aborts the rest
// of the flush.
type Batcher struct {
	mu      sync.Mutex
	queue   []WriteOp
	size    int
	timeout time.Duration

	errorCount int

	flushSignal chan struct{}
}

func newBatcher(size, timeoutMS int) *Batcher {
	return &Batcher{
		size:        size,
		timeout:     time.Duration(timeoutMS) * time.Millisecond,
		flushSignal: make(chan struct{}, 1),
	}
}

// Enqueue adds an operation, tagging it with a correlation id for log
// lines spanning the eventual flush. Triggers an immediate flush signal
// once the queue reaches the size threshold.
func (b *Batcher) Enqueue(kind string, exec func() error) {
	b.mu.Lock()
	op := WriteOp{ID: uuid.NewString(), Kind: kind, Exec: exec}
	b.queue = append(b.queue, op)
	full := len(b.queue) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.flushSignal <- struct{}{}:
		default:
		}
	}
}

// Run drives the flush loop until stop is closed. Call once from the
// composition root, e.g. alongside the other lifecycle goroutines.
func (b *Batcher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(b.timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush()
		case <-b.flushSignal:
			b.Flush()
		case <-stop:
			b.Flush()
			return
		}
	}
}

// Flush drains and executes the current queue, grouped by Kind. Each
// operation runs as its own store call; a group is not wrapped in a
// single transaction. Errors are logged and counted, not propagated.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	grouped := make(map[string][]WriteOp)
	for _, op := range batch {
		grouped[op.Kind] = append(grouped[op.Kind], op)
	}

	for kind, ops := range grouped {
		for _, op := range ops {
			if err := op.Exec(); err != nil {
				b.mu.Lock()
				b.errorCount++
				b.mu.Unlock()
				log.Printf("write batch: op %s (%s) failed: %v", op.ID, kind, err)
			}
		}
	}
}

// ErrorCount returns the lifetime count of failed batched operations.
func (b *Batcher) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorCount
}

// QueueLen returns the current pending queue length.
func (b *Batcher) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
