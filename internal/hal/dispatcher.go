package hal

import "sync"

// Dispatcher runs queued notifications in order on one goroutine, the
// way an OS delivers hardware callbacks on its own thread. The queue is
// unbounded so a callback may queue further notifications.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewDispatcher starts the delivery goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Post queues fn. It is dropped after Stop.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 || d.stopped {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
		}
	}
}

// Sync waits until everything posted before the call has run.
func (d *Dispatcher) Sync() {
	ch := make(chan struct{})
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.Post(func() { close(ch) })
	select {
	case <-ch:
	case <-d.done:
	}
}

// Stop drops pending notifications and waits for the goroutine to exit.
// A notification already running is allowed to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
	d.wg.Wait()
}
