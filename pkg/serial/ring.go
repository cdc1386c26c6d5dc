// Package serial models the chip's UART: two bounded byte FIFOs and a
// transmitter paced by simulation time.
package serial

import (
	"context"
	"sync"
)

// Ring is a bounded FIFO of bytes, safe for concurrent use.
//
// Blocking operations wait on signal channels (buffered, size 1) so they
// can also select on ctx. A woken waiter re-signals while the condition
// still holds so other waiters are not lost to coalescing.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	head int
	n    int

	notEmpty chan struct{}
	notFull  chan struct{}
	drained  chan struct{}
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:      make([]byte, capacity),
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		drained:  make(chan struct{}, 1),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// TryPush appends b unless the ring is full.
func (r *Ring) TryPush(b byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.n)%len(r.buf)] = b
	r.n++

	notify(r.notEmpty)
	if r.n < len(r.buf) {
		notify(r.notFull)
	}
	return true
}

// Push appends b, waiting while the ring is full.
func (r *Ring) Push(ctx context.Context, b byte) error {
	for {
		if r.TryPush(b) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notFull:
		}
	}
}

// TryPop removes the oldest byte.
func (r *Ring) TryPop() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == 0 {
		return 0, false
	}
	b := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.n--

	notify(r.notFull)
	if r.n > 0 {
		notify(r.notEmpty)
	} else {
		notify(r.drained)
	}
	return b, true
}

// Pop removes the oldest byte, waiting while the ring is empty.
func (r *Ring) Pop(ctx context.Context) (byte, error) {
	for {
		if b, ok := r.TryPop(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.notEmpty:
		}
	}
}

func (r *Ring) Peek() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == 0 {
		return 0, false
	}
	return r.buf[r.head], true
}

// PeekWait returns the oldest byte without removing it, waiting while the
// ring is empty.
func (r *Ring) PeekWait(ctx context.Context) (byte, error) {
	for {
		if b, ok := r.Peek(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.notEmpty:
		}
	}
}

// WaitEmpty blocks until every byte has been removed.
func (r *Ring) WaitEmpty(ctx context.Context) error {
	for {
		if r.Len() == 0 {
			notify(r.drained)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.drained:
		}
	}
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Ring) Cap() int { return len(r.buf) }

// Clear drops every byte and wakes writers and drain waiters.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head, r.n = 0, 0
	notify(r.notFull)
	notify(r.drained)
}
