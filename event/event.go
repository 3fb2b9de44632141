// Package event defines the Kubernetes events the engine records on the
// resources it reconciles.
package event

import (
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
)

const (
	K8sEventTypeNormal  = "Normal"
	K8sEventTypeWarning = "Warning"
)

// Event reasons.
const (
	ReasonFinalizerAdded = "FinalizerAdded"
	ReasonApplied        = "Applied"
	ReasonDeletePending  = "DeletePending"
	ReasonReleased       = "Released"
	ReasonCalloutFailed  = "CalloutFailed"
	ReasonInvalidCallout = "InvalidCallout"
	ReasonPatchFailed    = "PatchFailed"
)

// ReconcilerEvent represents the action of the controller having actually done
// anything. Any meaningful change should have an associated event.
type ReconcilerEvent interface {

	// Record this into an event recorder as a Kubernetes API event
	Record(recorder record.EventRecorder)
}

// FinalizerAdded is recorded when the engine claims a resource.
type FinalizerAdded struct {
	Object    runtime.Object
	Finalizer string
}

func (e *FinalizerAdded) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeNormal, ReasonFinalizerAdded, "Added finalizer %s", e.Finalizer)
}

// Applied is recorded after a successful apply callout.
type Applied struct {
	Object  runtime.Object
	Callout string
}

func (e *Applied) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeNormal, ReasonApplied, "%s succeeded", e.Callout)
}

// DeletePending is recorded when the delete callout reports that deletion is
// still in progress.
type DeletePending struct {
	Object  runtime.Object
	Callout string
}

func (e *DeletePending) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeNormal, ReasonDeletePending, "%s reported deletion in progress", e.Callout)
}

// Released is recorded when the finalizer is removed after cleanup.
type Released struct {
	Object    runtime.Object
	Finalizer string
}

func (e *Released) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeNormal, ReasonReleased, "Removed finalizer %s", e.Finalizer)
}

// CalloutFailed is recorded when a callout exited unsuccessfully.
type CalloutFailed struct {
	Object  runtime.Object
	Callout string
	Err     error
}

func (e *CalloutFailed) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeWarning, ReasonCalloutFailed, "%s failed: %v", e.Callout, e.Err)
}

// InvalidCallout is recorded when a callout couldn't be given the resource or
// printed output that isn't a status document.
type InvalidCallout struct {
	Object  runtime.Object
	Callout string
	Err     error
}

func (e *InvalidCallout) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeWarning, ReasonInvalidCallout, "%s: %v", e.Callout, e.Err)
}

// PatchFailed is recorded when the result of a reconciliation couldn't be
// written back.
type PatchFailed struct {
	Object runtime.Object
	Err    error
}

func (e *PatchFailed) Record(recorder record.EventRecorder) {
	recorder.Eventf(e.Object, K8sEventTypeWarning, ReasonPatchFailed, "Failed to patch resource: %v", e.Err)
}
