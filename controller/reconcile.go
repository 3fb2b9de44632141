package controller

//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks github.com/side8/k8s-operator/controller Invoker,Patcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"

	tkerror "github.com/side8/k8s-operator/error"
	"github.com/side8/k8s-operator/event"
	"github.com/side8/k8s-operator/gateway"
	"github.com/side8/k8s-operator/object"
	"github.com/side8/k8s-operator/telemetry"
)

// FinalizerName is the finalizer that marks a resource as managed.
const FinalizerName = "Side8OperatorDelete"

// Default callout executables, relative to the working directory.
const (
	DefaultApplyPath  = "./apply"
	DefaultDeletePath = "./delete"
)

// Action is the step the Reconciler takes for a snapshot.
type Action string

const (
	// ActionNone is taken for a terminating resource that no longer carries
	// the finalizer.
	ActionNone Action = "none"
	// ActionAddFinalizer claims an unmanaged resource.
	ActionAddFinalizer Action = "add_finalizer"
	// ActionApply runs the apply callout for a managed resource.
	ActionApply Action = "apply"
	// ActionDelete runs the delete callout for a terminating resource.
	ActionDelete Action = "delete"
)

// Decide returns the action for the given resource snapshot.
func Decide(obj *unstructured.Unstructured) Action {
	managed := object.HasFinalizer(obj, FinalizerName)
	if object.IsTerminating(obj) {
		if managed {
			return ActionDelete
		}
		return ActionNone
	}
	if managed {
		return ActionApply
	}
	return ActionAddFinalizer
}

// Invoker runs a callout executable for a resource and returns the status
// document it printed.
type Invoker interface {
	Invoke(ctx context.Context, path string, obj *unstructured.Unstructured) (interface{}, error)
}

// Patcher applies merge patches to the watched resources.
type Patcher interface {
	Patch(ctx context.Context, namespace, name string, patch []byte, subresources ...string) error
}

// Reconciler is the finalizer state machine. It reconciles one snapshot of a
// resource at a time.
type Reconciler struct {
	name       string
	invoker    Invoker
	patcher    Patcher
	applyPath  string
	deletePath string
	recorder   record.EventRecorder
	inst       *telemetry.Instrumentation
	log        logr.Logger

	// reconciliations mirrors reconcileTotal on the otel meter.
	reconciliations metric.Int64Counter

	// statusSubresource sends status patches to the status subresource.
	statusSubresource bool
}

// ReconcilerOption is used to configure Reconciler.
type ReconcilerOption func(*Reconciler)

// WithName sets the name of the Reconciler.
func WithName(name string) ReconcilerOption {
	return func(r *Reconciler) {
		r.name = name
	}
}

// WithLogger sets the Logger in a Reconciler.
func WithLogger(log logr.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.log = log
	}
}

// WithCallouts sets the apply and delete executables. Empty paths keep the
// defaults.
func WithCallouts(applyPath, deletePath string) ReconcilerOption {
	return func(r *Reconciler) {
		if applyPath != "" {
			r.applyPath = applyPath
		}
		if deletePath != "" {
			r.deletePath = deletePath
		}
	}
}

// WithStatusSubresource sets whether status is patched through the status
// subresource of the resource.
func WithStatusSubresource(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.statusSubresource = enabled
	}
}

// WithEventRecorder sets the recorder used to emit Kubernetes events about
// the reconciled resources.
func WithEventRecorder(recorder record.EventRecorder) ReconcilerOption {
	return func(r *Reconciler) {
		r.recorder = recorder
	}
}

// WithInstrumentation sets the instrumentation used to trace
// reconciliations.
func WithInstrumentation(inst *telemetry.Instrumentation) ReconcilerOption {
	return func(r *Reconciler) {
		r.inst = inst
	}
}

// NewReconciler returns a Reconciler that runs callouts with the given
// invoker and writes results with the given patcher.
func NewReconciler(invoker Invoker, patcher Patcher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		invoker:    invoker,
		patcher:    patcher,
		applyPath:  DefaultApplyPath,
		deletePath: DefaultDeletePath,
		log:        ctrl.Log,
	}

	for _, opt := range opts {
		opt(r)
	}

	// If a name is set, log it as the reconciler name.
	if r.name != "" {
		r.log = r.log.WithValues("reconciler", r.name)
	}
	if r.inst == nil {
		r.inst = telemetry.NewInstrumentation("side8-operator", r.log)
	}
	r.reconciliations = r.inst.Int64Counter("side8_operator.reconciliations", "Total number of reconciliations per action and result")

	return r
}

// Reconcile runs one cycle of the state machine for the snapshot. Patches are
// addressed to id, the identity captured when the resource's worker was
// spawned. A failed cycle is logged and returned; nothing is retried.
func (r *Reconciler) Reconcile(ctx context.Context, id object.Identity, obj *unstructured.Unstructured) (reterr error) {
	ctx, span, log := r.inst.Start(ctx, "reconcile", id.KeysAndValues()...)
	defer span.End()

	start := time.Now()
	action := Decide(obj)
	defer func() {
		logReconcileFinish(log, action, start, reterr)
	}()

	switch action {
	case ActionNone:
		log.V(1).Info("resource released, nothing to do")
		r.count(ctx, action, resultSuccess)
		return nil

	case ActionAddFinalizer:
		patch := finalizersPatch(object.WithFinalizer(obj.GetFinalizers(), FinalizerName))
		if err := r.patch(ctx, id, obj, action, patch); err != nil {
			return err
		}
		log.Info("added finalizer", "finalizer", FinalizerName)
		r.record(&event.FinalizerAdded{Object: obj, Finalizer: FinalizerName})

	case ActionApply:
		status, err := r.callout(ctx, r.applyPath, obj, action)
		if err != nil {
			return err
		}
		if err := r.patchStatus(ctx, id, obj, action, status); err != nil {
			return err
		}
		log.Info("applied")
		r.record(&event.Applied{Object: obj, Callout: r.applyPath})

	case ActionDelete:
		status, err := r.callout(ctx, r.deletePath, obj, action)
		if err != nil {
			return err
		}
		if object.IsEmptyValue(status) {
			patch := finalizersPatch(object.WithoutFinalizer(obj.GetFinalizers(), FinalizerName))
			if err := r.patch(ctx, id, obj, action, patch); err != nil {
				return err
			}
			log.Info("removed finalizer", "finalizer", FinalizerName)
			r.record(&event.Released{Object: obj, Finalizer: FinalizerName})
		} else {
			if err := r.patchStatus(ctx, id, obj, action, status); err != nil {
				return err
			}
			log.Info("deletion in progress")
			r.record(&event.DeletePending{Object: obj, Callout: r.deletePath})
		}
	}

	r.count(ctx, action, resultSuccess)
	return nil
}

// callout runs the executable at path and returns the status it reported.
// A callout that exited unsuccessfully is told apart from one whose resource
// or output couldn't be handled.
func (r *Reconciler) callout(ctx context.Context, path string, obj *unstructured.Unstructured, action Action) (interface{}, error) {
	status, err := r.invoker.Invoke(ctx, path, obj)
	if err == nil {
		return status, nil
	}

	log := ctrl.LoggerFrom(ctx).WithValues("callout", path)
	if failed, exitCode := tkerror.IsCalloutFailed(err); failed {
		log.Error(err, "callout failed", "exitCode", exitCode)
		r.count(ctx, action, resultCalloutFailed)
		r.record(&event.CalloutFailed{Object: obj, Callout: path, Err: err})
		return nil, err
	}

	if unsupported, typeName := tkerror.IsUnsupportedType(err); unsupported {
		log.Error(err, "value of unsupported type", "type", typeName)
	} else {
		log.Error(err, "invalid callout input or output")
	}
	r.count(ctx, action, resultInvalidCallout)
	r.record(&event.InvalidCallout{Object: obj, Callout: path, Err: err})
	return nil, err
}

func (r *Reconciler) patch(ctx context.Context, id object.Identity, obj *unstructured.Unstructured, action Action, patch []byte, subresources ...string) error {
	err := r.patcher.Patch(ctx, id.Namespace, id.Name, patch, subresources...)
	if err != nil {
		ctrl.LoggerFrom(ctx).Error(err, "failed to patch resource", "patch", string(patch))
		r.count(ctx, action, resultPatchFailed)
		r.record(&event.PatchFailed{Object: obj, Err: err})
		return errors.Wrapf(err, "failed to patch %s", id)
	}
	return nil
}

// patchStatus replaces the status of the resource with the callout output.
func (r *Reconciler) patchStatus(ctx context.Context, id object.Identity, obj *unstructured.Unstructured, action Action, status interface{}) error {
	patch, err := json.Marshal(map[string]interface{}{
		"status": status,
	})
	if err != nil {
		r.count(ctx, action, resultInvalidCallout)
		return errors.Wrap(err, "failed to encode status")
	}
	if r.statusSubresource {
		return r.patch(ctx, id, obj, action, patch, gateway.StatusSubresource)
	}
	return r.patch(ctx, id, obj, action, patch)
}

func (r *Reconciler) count(ctx context.Context, action Action, result string) {
	reconcileTotal.WithLabelValues(string(action), result).Inc()
	r.reconciliations.Add(ctx, 1,
		attribute.String("action", string(action)),
		attribute.String("result", result),
	)
}

func (r *Reconciler) record(e event.ReconcilerEvent) {
	if r.recorder != nil {
		e.Record(r.recorder)
	}
}

// finalizersPatch returns a merge patch replacing the finalizer list. An
// empty list is sent as [] so the API server clears the field.
func finalizersPatch(finalizers []string) []byte {
	if finalizers == nil {
		finalizers = []string{}
	}
	// Marshaling strings can't fail.
	b, _ := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"finalizers": finalizers,
		},
	})
	return b
}
