package socket

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatcherFlushRunsEveryQueuedOp(t *testing.T) {
	b := newBatcher(10, 1000)

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		b.Enqueue("update_score", func() error {
			ran.Add(1)
			return nil
		})
	}

	b.Flush()

	if got := ran.Load(); got != 3 {
		t.Fatalf("ops executed = %d, want 3", got)
	}
	if got := b.QueueLen(); got != 0 {
		t.Fatalf("QueueLen() after flush = %d, want 0", got)
	}
}

func TestBatcherFlushCountsErrorsWithoutAbortingTheRest(t *testing.T) {
	b := newBatcher(10, 1000)

	b.Enqueue("a", func() error { return errors.New("boom") })
	b.Enqueue("b", func() error { return nil })
	b.Enqueue("c", func() error { return errors.New("boom again") })

	b.Flush()

	if got := b.ErrorCount(); got != 2 {
		t.Fatalf("ErrorCount() = %d, want 2", got)
	}
}

func TestBatcherFlushOnEmptyQueueIsNoop(t *testing.T) {
	b := newBatcher(10, 1000)
	b.Flush() // should not panic or block
	if got := b.QueueLen(); got != 0 {
		t.Fatalf("QueueLen() = %d, want 0", got)
	}
}

func TestBatcherRunFlushesOnSizeThreshold(t *testing.T) {
	b := newBatcher(2, 10_000) // long timeout so only the size signal can trigger a flush
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		b.Run(stop)
		close(done)
	}()

	flushed := make(chan struct{}, 2)
	b.Enqueue("a", func() error { flushed <- struct{}{}; return nil })
	b.Enqueue("b", func() error { flushed <- struct{}{}; return nil })

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("expected the size threshold to trigger a flush")
	}
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("expected both queued ops to run")
	}

	close(stop)
	<-done
}

func TestBatcherRunFlushesOnTimeout(t *testing.T) {
	b := newBatcher(100, 20) // small timeout, large size so only the ticker fires
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		b.Run(stop)
		close(done)
	}()

	flushed := make(chan struct{}, 1)
	b.Enqueue("a", func() error { flushed <- struct{}{}; return nil })

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("expected the timeout ticker to trigger a flush")
	}

	close(stop)
	<-done
}
