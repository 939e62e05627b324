package backend

import "sync"

// taskQueue runs submitted functions one at a time, in order, on a single
// worker goroutine. Notification handlers hand work to it instead of
// touching stream state on the service's goroutine.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{wake: make(chan struct{}, 1)}
	q.wg.Add(1)
	go q.run()
	return q
}

// submit enqueues fn. It returns false once the queue is closed.
func (q *taskQueue) submit(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) run() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
	}
}

// close stops accepting work, runs what is already queued and waits for
// the worker to exit. Safe to call more than once.
func (q *taskQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.wg.Wait()
}
