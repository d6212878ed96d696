package radio

import (
	"context"
	"sync"
)

// Queue is the bounded inbox of the goroutine that owns connection and
// session state. Other goroutines post closures instead of touching state.
type Queue struct {
	ch        chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}

	return &Queue{
		ch:   make(chan func(), size),
		done: make(chan struct{}),
	}
}

// Post enqueues fn, blocking while the queue is full. It reports false once
// the queue has stopped.
func (q *Queue) Post(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- fn:
		return true
	case <-q.done:
		return false
	}
}

// Run executes posted closures in order until ctx is done or Close is called.
func (q *Queue) Run(ctx context.Context) {
	defer q.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case fn := <-q.ch:
			fn()
		}
	}
}

func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue) Done() <-chan struct{} {
	return q.done
}
