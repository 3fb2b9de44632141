package gateway

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	ctrl "sigs.k8s.io/controller-runtime"
)

// StatusSubresource is the name of the status subresource.
const StatusSubresource = "status"

// Gateway defines the API operations used by the engine.
type Gateway interface {
	// ListAndWatch returns a stream of ADDED, MODIFIED and DELETED events of
	// the watched collection. The stream survives watch interruptions and
	// only ends when the context is cancelled or it's stopped.
	ListAndWatch(ctx context.Context) watch.Interface

	// Patch sends a merge patch to the named resource, or to one of its
	// subresources.
	Patch(ctx context.Context, namespace, name string, patch []byte, subresources ...string) error

	// Delete deletes the named resource. A resource that doesn't exist is not
	// an error.
	Delete(ctx context.Context, namespace, name string) error
}

// Client implements Gateway with a dynamic client.
type Client struct {
	gvr      schema.GroupVersionResource
	resource dynamic.NamespaceableResourceInterface
	log      logr.Logger
	resync   time.Duration
	backoff  wait.Backoff
}

var _ Gateway = &Client{}

// ClientOption is used to configure Client.
type ClientOption func(*Client)

// WithLogger sets the Logger of the Client.
func WithLogger(log logr.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithResyncPeriod makes the API server end every watch after the given
// period, which causes a fresh list of the collection. Zero leaves the watch
// timeout to the server.
func WithResyncPeriod(period time.Duration) ClientOption {
	return func(c *Client) {
		c.resync = period
	}
}

// WithBackoff sets the backoff used between failed list attempts.
func WithBackoff(backoff wait.Backoff) ClientOption {
	return func(c *Client) {
		c.backoff = backoff
	}
}

// DefaultBackoff is the default backoff between failed list attempts.
var DefaultBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2,
	Jitter:   0.1,
	Steps:    10,
	Cap:      time.Minute,
}

// New returns a Client for the given resource collection.
func New(dc dynamic.Interface, gvr schema.GroupVersionResource, opts ...ClientOption) *Client {
	c := &Client{
		gvr:      gvr,
		resource: dc.Resource(gvr),
		log:      ctrl.Log.WithName("gateway"),
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithValues("resource", gvr.String())
	return c
}

// ListAndWatch implements Gateway.
func (c *Client) ListAndWatch(ctx context.Context) watch.Interface {
	return NewStream(ctx, c.resource, StreamOptions{
		Log:          c.log,
		ResyncPeriod: c.resync,
		Backoff:      c.backoff,
	})
}

// Patch implements Gateway.
func (c *Client) Patch(ctx context.Context, namespace, name string, patch []byte, subresources ...string) error {
	_, err := c.resource.Namespace(namespace).Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{}, subresources...)
	return errors.Wrapf(err, "failed to patch %s/%s", namespace, name)
}

// Delete implements Gateway.
func (c *Client) Delete(ctx context.Context, namespace, name string) error {
	err := c.resource.Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return errors.Wrapf(err, "failed to delete %s/%s", namespace, name)
}
