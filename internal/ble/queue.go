package ble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned when posting to a session whose loop has exited.
var ErrStopped = errors.New("ble: session stopped")

// ErrRunning is returned when Run is called on a session that is already running.
var ErrRunning = errors.New("ble: session already running")

const queueSize = 64

// queue serializes every event of a session onto the goroutine executing
// run. Each event is handled to completion before the next is taken.
type queue[E any] struct {
	ch      chan E
	done    chan struct{}
	once    sync.Once
	running atomic.Bool
}

func newQueue[E any]() *queue[E] {
	return &queue[E]{
		ch:   make(chan E, queueSize),
		done: make(chan struct{}),
	}
}

// post enqueues ev. It blocks while the queue is full and fails once the
// loop has exited.
func (q *queue[E]) post(ev E) error {
	select {
	case <-q.done:
		return ErrStopped
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return ErrStopped
	}
}

// run hands events to handle until ctx is cancelled. A queue runs once.
func (q *queue[E]) run(ctx context.Context, handle func(E)) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer q.once.Do(func() { close(q.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-q.ch:
			handle(ev)
		}
	}
}
