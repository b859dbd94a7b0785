// Package workerpool provides a bounded worker pool with per-call rooms.
// A Room collects results of submitted tasks in submission order, which the
// tree engine relies on when hashing and sealing file chunks in parallel:
// chunks are independent, but their link order is not.
package workerpool

import (
	"runtime"
	"sync"
)

// Pool runs tasks on a fixed set of workers shared by all rooms.
type Pool struct {
	taskQueue chan task
	closeOnce sync.Once
}

type task struct {
	index int
	run   func() (interface{}, error)
	room  *Room
}

type result struct {
	index int
	value interface{}
	err   error
}

// Config configures a Pool. Zero values pick sensible defaults.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to 3x CPUs.
	Workers int
	// QueueDepth is the shared task buffer size. Defaults to 1024.
	QueueDepth int
}

// New creates a pool and starts its workers.
func New(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU() * 3
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1024
	}

	p := &Pool{taskQueue: make(chan task, cfg.QueueDepth)}
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.taskQueue {
		value, err := t.run()
		t.room.mu.Lock()
		t.room.done = append(t.room.done, result{index: t.index, value: value, err: err})
		t.room.mu.Unlock()
		t.room.wg.Done()
	}
}

// Close stops the workers once all queued tasks have drained. Rooms must not
// submit after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.taskQueue)
	})
}

// Room groups the tasks of one logical operation and collects their results.
// A Room belongs to a single goroutine: Submit and Wait must not be called
// concurrently with each other.
type Room struct {
	pool *Pool
	mu   sync.Mutex
	done []result
	wg   sync.WaitGroup
	next int
}

// NewRoom creates a room.
func (p *Pool) NewRoom() *Room {
	return &Room{pool: p}
}

// Submit queues a task. Blocks when the shared queue is full, which bounds
// memory under load.
func (r *Room) Submit(run func() (interface{}, error)) {
	t := task{index: r.next, run: run, room: r}
	r.next++
	r.wg.Add(1)
	r.pool.taskQueue <- t
}

// Wait blocks until every submitted task has finished and returns their
// results in submission order. All tasks run even after a failure; the
// first error by submission order is returned.
func (r *Room) Wait() ([]interface{}, error) {
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]interface{}, r.next)
	errs := make([]error, r.next)
	for _, res := range r.done {
		ordered[res.index] = res.value
		errs[res.index] = res.err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	r.done = nil
	r.next = 0
	return ordered, nil
}
