// Package controller drives the reconciliation of watched resources.
//
// The Router consumes the watch stream and keeps one queue of pending
// snapshots per resource UID. A queue is drained by a single worker that is
// spawned on the bounded scheduler when the queue is created, so at most one
// reconciliation per resource runs at a time. Snapshots that arrive while a
// reconciliation is running are coalesced: the worker only reconciles the
// latest one.
//
// The Reconciler implements the finalizer state machine. A resource without
// the finalizer is claimed by adding it. A claimed resource is handed to the
// apply executable, whose output becomes the resource status. Once the
// resource is being deleted, the delete executable runs until it reports an
// empty status, then the finalizer is removed and the API server completes
// the deletion.
package controller
