// Package scheduler provides a bounded task scheduler. It caps the number of
// concurrently running tasks and admits waiting tasks in the order they were
// spawned.
package scheduler

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// DefaultLimit is the default number of concurrently running tasks.
const DefaultLimit = 10

var (
	runningTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "side8_operator",
		Name:      "workers_running",
		Help:      "The number of running resource workers",
	})
	waitingTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "side8_operator",
		Name:      "workers_waiting",
		Help:      "The number of resource workers waiting for an admission slot",
	})
)

func init() {
	metrics.Registry.MustRegister(runningTasks, waitingTasks)
}

// Task is a unit of work run by the Scheduler.
type Task func(context.Context)

// Scheduler runs spawned tasks with bounded concurrency.
type Scheduler struct {
	limit int64
	sem   *semaphore.Weighted
	log   logr.Logger

	mu      sync.Mutex
	pending []Task
	wake    chan struct{}

	// wg tracks the running tasks.
	wg sync.WaitGroup
}

// Option is used to configure Scheduler.
type Option func(*Scheduler)

// WithLimit sets the maximum number of concurrently running tasks.
func WithLimit(limit int) Option {
	return func(s *Scheduler) {
		s.limit = int64(limit)
	}
}

// WithLogger sets the Logger of the Scheduler.
func WithLogger(log logr.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// New returns a Scheduler configured with the given options.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		limit: DefaultLimit,
		log:   ctrl.Log.WithName("scheduler"),
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limit < 1 {
		s.limit = 1
	}
	s.sem = semaphore.NewWeighted(s.limit)
	return s
}

// Limit returns the maximum number of concurrently running tasks.
func (s *Scheduler) Limit() int {
	return int(s.limit)
}

// Spawn queues a task for execution. It never blocks; the task starts once
// every task spawned before it has started and a slot is free.
func (s *Scheduler) Spawn(task Task) {
	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.mu.Unlock()
	waitingTasks.Inc()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run admits spawned tasks until the context is cancelled. Tasks still
// waiting at that point are never started.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		task := s.next()
		if task == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		// Tasks are acquired one at a time by this loop, which keeps the
		// admission order equal to the spawn order.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		waiting := s.pop()
		waitingTasks.Dec()
		s.log.V(2).Info("task admitted", "waiting", waiting)
		runningTasks.Inc()

		s.wg.Add(1)
		go func() {
			defer func() {
				runningTasks.Dec()
				s.sem.Release(1)
				s.wg.Done()
			}()
			task(ctx)
		}()
	}
}

// Wait blocks until all the started tasks return.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// next returns the oldest pending task without removing it.
func (s *Scheduler) next() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	return s.pending[0]
}

// pop removes the oldest pending task and returns the number of tasks left.
func (s *Scheduler) pop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return len(s.pending)
}
