package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("notification queue closed")

// Queue buffers notifications between the services that request them and the delivery worker.
// Dequeue returns (nil, nil) when nothing arrived before its poll window elapsed.
type Queue interface {
	Enqueue(ctx context.Context, n domain.Notification) error
	Dequeue(ctx context.Context) (*domain.Notification, error)
}

// MemoryQueue is an in-process queue backed by a buffered channel.
type MemoryQueue struct {
	ch     chan domain.Notification
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding at most size pending notifications.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan domain.Notification, size)}
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *MemoryQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue waits for the next notification or for ctx to end.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*domain.Notification, error) {
	select {
	case n, ok := <-q.ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		return &n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of pending notifications.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting notifications; pending ones can still be drained.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
