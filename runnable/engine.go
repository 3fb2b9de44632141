package runnable

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/side8/k8s-operator/controller"
	"github.com/side8/k8s-operator/scheduler"
)

// EventSource opens the stream of resource events.
type EventSource interface {
	ListAndWatch(ctx context.Context) watch.Interface
}

// Engine connects the event stream, the router and the scheduler.
type Engine struct {
	source    EventSource
	router    *controller.Router
	scheduler *scheduler.Scheduler

	// done is closed when the scheduler stops admitting tasks.
	done chan struct{}
	once sync.Once
}

// NewEngine returns the engine wrapped in a Graceful runnable. Stopping it
// waits for the running reconciliations to finish.
func NewEngine(source EventSource, router *controller.Router, sched *scheduler.Scheduler, requireLeaderElection bool, wg *sync.WaitGroup, logger logr.Logger) *Graceful {
	e := &Engine{
		source:    source,
		router:    router,
		scheduler: sched,
		done:      make(chan struct{}),
	}
	return NewGraceful(e.Run, e.Stop, requireLeaderElection, wg, logger)
}

// Run starts the scheduler and routes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer e.once.Do(func() { close(e.done) })
		_ = e.scheduler.Run(ctx)
	}()

	err := e.router.Run(ctx, e.source.ListAndWatch(ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop waits for the scheduler to stop and for the started workers to return.
func (e *Engine) Stop() error {
	<-e.done
	e.scheduler.Wait()
	return nil
}
