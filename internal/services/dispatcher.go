package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one best-effort unit of work decoupled from the webhook response.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher runs side-effect tasks on a bounded worker pool. Task errors and
// panics are logged and never propagate; the webhook has already been
// acknowledged by the time a task runs.
type Dispatcher struct {
	tasks   chan Task
	wg      sync.WaitGroup
	pending sync.WaitGroup
	timeout time.Duration
	once    sync.Once
}

func NewDispatcher(workers int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{
		tasks:   make(chan Task, 256),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
		d.pending.Done()
	}
}

func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task", task.Name).Msg("Side-effect task panicked")
		}
	}()

	// Detached from the request context: the HTTP response does not wait.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		log.Warn().Err(err).Str("task", task.Name).Msg("Side-effect task failed")
	}
}

// Submit enqueues tasks, falling back to inline execution if the queue is full
// so a burst never drops work silently.
func (d *Dispatcher) Submit(tasks ...Task) {
	for _, t := range tasks {
		d.pending.Add(1)
		select {
		case d.tasks <- t:
		default:
			d.run(t)
			d.pending.Done()
		}
	}
}

// Drain blocks until every submitted task has finished. Used by shutdown and
// tests.
func (d *Dispatcher) Drain() {
	d.pending.Wait()
}

// Close drains and stops the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.pending.Wait()
		close(d.tasks)
		d.wg.Wait()
	})
}
