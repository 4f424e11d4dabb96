package chat

import "sync"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout pushes one payload to many local connections through a small
// worker pool, so a burst of bus events never blocks the dispatcher.
type Fanout struct {
	jobs chan fanoutJob
	done chan struct{}
	once sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{
		jobs: make(chan fanoutJob, queue),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-f.done:
					return
				case job := <-f.jobs:
					for _, c := range job.conns {
						c.Push(job.payload)
					}
				}
			}
		}()
	}
	return f
}

// Broadcast enqueues one payload for a set of connections.
// After Close it becomes a no-op instead of a panic, so subscriber
// loops still draining during shutdown stay harmless.
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	select {
	case <-f.done:
	case f.jobs <- fanoutJob{conns: conns, payload: payload}:
	}
}

// Close stops the workers (idempotent).
func (f *Fanout) Close() {
	f.once.Do(func() { close(f.done) })
}
