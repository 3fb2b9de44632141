package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/side8/k8s-operator/object"
	"github.com/side8/k8s-operator/scheduler"
)

// ErrWatchClosed is returned by Router.Run when the event stream ends.
var ErrWatchClosed = errors.New("watch stream closed")

// ResourceReconciler reconciles one snapshot of a resource.
type ResourceReconciler interface {
	Reconcile(ctx context.Context, id object.Identity, obj *unstructured.Unstructured) error
}

// Spawner starts tasks without blocking the caller.
type Spawner interface {
	Spawn(task scheduler.Task)
}

// Router dispatches watch events to per-resource queues and makes sure each
// queue is drained by exactly one worker.
type Router struct {
	reconciler ResourceReconciler
	spawner    Spawner
	log        logr.Logger

	// mu guards queues. A queue is created and removed under mu, so a
	// snapshot is either appended to a queue with a live worker or starts a
	// new one.
	mu     sync.Mutex
	queues map[types.UID]*resourceQueue
}

// NewRouter creates a Router that reconciles with reconciler and runs workers
// through spawner. logger is optional. Pass nil for the default logger.
func NewRouter(reconciler ResourceReconciler, spawner Spawner, logger logr.Logger) *Router {
	if logger == nil {
		logger = ctrl.Log.WithName("router")
	}
	return &Router{
		reconciler: reconciler,
		spawner:    spawner,
		log:        logger,
		queues:     map[types.UID]*resourceQueue{},
	}
}

// Run consumes events until ctx is done or the stream is closed. It returns
// ErrWatchClosed when the stream closes and the context error on
// cancellation. The stream is stopped on return.
func (r *Router) Run(ctx context.Context, events watch.Interface) error {
	defer events.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events.ResultChan():
			if !ok {
				return ErrWatchClosed
			}
			r.route(ev)
		}
	}
}

// Len returns the number of resources with a live queue.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

func (r *Router) route(ev watch.Event) {
	obj, ok := ev.Object.(*unstructured.Unstructured)
	if !ok {
		r.log.Info("ignoring event with unexpected object", "type", ev.Type, "object", fmt.Sprintf("%T", ev.Object))
		return
	}
	id := object.IdentityOf(obj)
	if id.UID == "" {
		r.log.Info("ignoring resource without uid", "type", ev.Type, "namespace", id.Namespace, "name", id.Name)
		return
	}

	switch ev.Type {
	case watch.Added, watch.Modified:
		r.enqueue(id, obj)
	case watch.Deleted:
		r.forget(id)
	default:
		r.log.V(1).Info("ignoring event", append([]interface{}{"type", ev.Type}, id.KeysAndValues()...)...)
	}
}

// enqueue appends the snapshot to the queue of the resource, creating the
// queue and spawning its worker if there is none.
func (r *Router) enqueue(id object.Identity, obj *unstructured.Unstructured) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[id.UID]; ok {
		q.push(obj)
		r.log.V(1).Info("queued snapshot", append(id.KeysAndValues(), "pending", q.len())...)
		return
	}

	q := newResourceQueue(id)
	q.push(obj)
	r.queues[id.UID] = q
	liveQueues.Set(float64(len(r.queues)))

	r.log.V(1).Info("spawning worker", id.KeysAndValues()...)
	r.spawner.Spawn(func(ctx context.Context) {
		r.work(ctx, q)
	})
}

// forget drops the pending snapshots of a deleted resource. A running
// reconciliation completes, after which its worker finds the queue empty.
func (r *Router) forget(id object.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[id.UID]; ok {
		if dropped := q.clear(); dropped > 0 {
			r.log.V(1).Info("dropped snapshots of deleted resource", append(id.KeysAndValues(), "dropped", dropped)...)
		}
	}
}

// work drains q, reconciling the latest snapshot each round, and removes the
// queue once it's empty.
func (r *Router) work(ctx context.Context, q *resourceQueue) {
	log := r.log.WithValues(q.id.KeysAndValues()...)
	for {
		obj, skipped := r.next(ctx, q)
		if obj == nil {
			log.V(1).Info("worker finished")
			return
		}
		if skipped > 0 {
			log.V(1).Info("skipping stale snapshots", "skipped", skipped)
		}
		// The reconciler logs and counts its own failures. The worker moves
		// on to the next snapshot, if any. A started reconciliation is not
		// cancelled on shutdown; ctx only stops the worker between snapshots.
		_ = r.reconciler.Reconcile(withoutCancel{ctx}, q.id, obj)
	}
}

// next pops the latest snapshot of q. When there is none, or ctx is done, it
// removes the queue from the router and returns nil.
func (r *Router) next(ctx context.Context, q *resourceQueue) (*unstructured.Unstructured, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() == nil {
		if obj, skipped := q.latest(); obj != nil {
			return obj, skipped
		}
	}
	delete(r.queues, q.id.UID)
	liveQueues.Set(float64(len(r.queues)))
	return nil, 0
}

// withoutCancel carries the values of its parent but is never done.
type withoutCancel struct {
	parent context.Context
}

func (withoutCancel) Deadline() (time.Time, bool) { return time.Time{}, false }
func (withoutCancel) Done() <-chan struct{} { return nil }
func (withoutCancel) Err() error { return nil }
func (c withoutCancel) Value(key interface{}) interface{} { return c.parent.Value(key) }
