package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	ctrl "sigs.k8s.io/controller-runtime"
)

// ListWatcher defines the list and watch calls of a resource collection. It
// is satisfied by dynamic.ResourceInterface.
type ListWatcher interface {
	List(ctx context.Context, opts metav1.ListOptions) (*unstructured.UnstructuredList, error)
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

// StreamOptions configures a Stream.
type StreamOptions struct {
	Log          logr.Logger
	ResyncPeriod time.Duration
	Backoff      wait.Backoff
}

// Stream is a watch.Interface that lists the collection, reports every listed
// item as ADDED, then watches from the list's resource version. When the watch
// ends for any reason the collection is listed again.
type Stream struct {
	lw     ListWatcher
	opts   StreamOptions
	result chan watch.Event
	cancel context.CancelFunc
	once   sync.Once
}

var _ watch.Interface = &Stream{}

// NewStream starts a Stream over the given ListWatcher. The stream stops when
// ctx is cancelled or Stop is called.
func NewStream(ctx context.Context, lw ListWatcher, opts StreamOptions) *Stream {
	if opts.Log == nil {
		opts.Log = ctrl.Log.WithName("gateway")
	}
	if opts.Backoff.Duration == 0 {
		opts.Backoff = DefaultBackoff
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		lw:     lw,
		opts:   opts,
		result: make(chan watch.Event),
		cancel: cancel,
	}
	go s.run(ctx)
	return s
}

// ResultChan implements watch.Interface.
func (s *Stream) ResultChan() <-chan watch.Event {
	return s.result
}

// Stop implements watch.Interface.
func (s *Stream) Stop() {
	s.once.Do(s.cancel)
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.result)
	log := s.opts.Log

	backoff := s.opts.Backoff
	for {
		var delay time.Duration
		if err := s.listAndWatch(ctx); err != nil {
			delay = backoff.Step()
			log.Error(err, "list and watch interrupted", "retryAfter", delay.String())
		} else {
			backoff = s.opts.Backoff
		}

		if ctx.Err() != nil {
			return
		}
		log.V(1).Info("reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// listAndWatch runs a single list followed by a watch. It returns nil when
// the watch ended in a way that only needs a fresh list.
func (s *Stream) listAndWatch(ctx context.Context) error {
	log := s.opts.Log

	list, err := s.lw.List(ctx, metav1.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to list")
	}
	log.V(1).Info("listed", "items", len(list.Items), "resourceVersion", list.GetResourceVersion())
	for i := range list.Items {
		if !s.send(ctx, watch.Event{Type: watch.Added, Object: &list.Items[i]}) {
			return nil
		}
	}

	opts := metav1.ListOptions{
		ResourceVersion:     list.GetResourceVersion(),
		AllowWatchBookmarks: true,
	}
	if s.opts.ResyncPeriod > 0 {
		timeout := int64(s.opts.ResyncPeriod.Seconds())
		opts.TimeoutSeconds = &timeout
	}
	w, err := s.lw.Watch(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "failed to watch")
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				log.V(1).Info("watch closed")
				return nil
			}
			switch ev.Type {
			case watch.Added, watch.Modified, watch.Deleted:
				if !s.send(ctx, ev) {
					return nil
				}
			case watch.Bookmark:
			case watch.Error:
				statusErr := apierrors.FromObject(ev.Object)
				if apierrors.IsResourceExpired(statusErr) || apierrors.IsGone(statusErr) {
					log.V(1).Info("watch expired", "reason", statusErr.Error())
					return nil
				}
				return errors.Wrap(statusErr, "watch failed")
			}
		}
	}
}

// send delivers an event unless the stream is stopped first.
func (s *Stream) send(ctx context.Context, ev watch.Event) bool {
	select {
	case s.result <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
