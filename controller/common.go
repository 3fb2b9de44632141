package controller

import (
	"time"

	"github.com/go-logr/logr"
)

// logReconcileFinish is used to log the reconcile function execution
// information. The start time is the start time of the reconcile function, it
// is used to calculate the execution time of the function.
func logReconcileFinish(log logr.Logger, action Action, start time.Time, err error) {
	log.V(4).Info("reconcile finished", "action", action, "execution-time", time.Since(start).String(), "error", err)
}
