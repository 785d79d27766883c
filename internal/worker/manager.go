package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

const DefaultQueueLen = 16

var (
	ErrQueueFull = errors.New("task queue full")
	ErrStopped   = errors.New("worker stopped")
)

// Task is executed on the goroutine that owns its key.
type Task func(ctx context.Context)

type task struct {
	ctx    context.Context
	fn     Task
	result chan error
}

type workerState struct {
	taskCh chan task
	stopCh chan struct{}
}

// Manager runs one goroutine per key. Tasks submitted for the same key run
// one at a time in submission order, which gives each key a single writer.
type Manager struct {
	mu       sync.Mutex
	queueLen int
	workers  map[string]*workerState
	stopped  bool
}

func NewManager(queueLen int) *Manager {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Manager{
		queueLen: queueLen,
		workers:  make(map[string]*workerState),
	}
}

// Do queues fn on the worker for key and waits until it has run. A task whose
// context is done before it starts is dropped; once started it runs to the end
// even if the caller stops waiting.
func (m *Manager) Do(ctx context.Context, key string, fn Task) error {
	if fn == nil {
		return errors.New("task required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}
	if err := m.enqueue(key, t); err != nil {
		return err
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue hands t to the worker for key, starting one if needed. The send
// happens under m.mu, the same lock StopAll closes stopCh under, so nothing
// reaches a queue after its worker was told to stop.
func (m *Manager) enqueue(key string, t task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	state, ok := m.workers[key]
	if !ok {
		state = &workerState{
			taskCh: make(chan task, m.queueLen),
			stopCh: make(chan struct{}),
		}
		m.workers[key] = state
		go m.runWorker(key, state)
	}

	select {
	case state.taskCh <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// StopAll terminates every worker. Tasks still queued get ErrStopped unless
// the worker picks them up first; later calls to Do always get ErrStopped.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopped = true
	for key, state := range m.workers {
		delete(m.workers, key)
		close(state.stopCh)
	}
	m.mu.Unlock()
}

func (m *Manager) runWorker(key string, state *workerState) {
	debugLog("[worker] %s started", key)
	for {
		select {
		case <-state.stopCh:
			drain(state)
			debugLog("[worker] %s stopped", key)
			return
		case t := <-state.taskCh:
			if err := t.ctx.Err(); err != nil {
				debugLog("[worker] %s dropped task: %v", key, err)
				t.result <- err
				continue
			}
			t.result <- execute(key, t)
		}
	}
}

func execute(key string, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker %s task panic: %v", key, r)
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	t.fn(t.ctx)
	return nil
}

func drain(state *workerState) {
	for {
		select {
		case t := <-state.taskCh:
			t.result <- ErrStopped
		default:
			return
		}
	}
}
