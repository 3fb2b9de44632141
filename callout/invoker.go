package callout

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/yaml"

	"github.com/side8/k8s-operator/flatten"
)

const (
	// EnvResource holds the JSON encoded resource and is the prefix of the
	// flattened variables.
	EnvResource = "K8S"
	// EnvDollar holds a literal "$".
	EnvDollar = "_DOLLAR"
)

// FailedError is returned when a callout could not be run or exited with a
// non-zero code.
type FailedError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *FailedError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s failed to run: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s exited with %d", e.Path, e.ExitCode)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// CalloutFailed implements the calloutFailed error behavior.
func (e *FailedError) CalloutFailed() (bool, int) {
	return true, e.ExitCode
}

// Invoker runs callout executables.
type Invoker struct {
	timeout time.Duration
	environ func() []string
}

// InvokerOption is used to configure Invoker.
type InvokerOption func(*Invoker)

// WithTimeout bounds the run time of every callout. Zero means no bound.
func WithTimeout(timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = timeout
	}
}

// WithBaseEnviron sets the function returning the base environment the
// resource variables are added to. Defaults to os.Environ.
func WithBaseEnviron(environ func() []string) InvokerOption {
	return func(i *Invoker) {
		i.environ = environ
	}
}

// NewInvoker returns an Invoker configured with the given options.
func NewInvoker(opts ...InvokerOption) *Invoker {
	i := &Invoker{environ: os.Environ}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Environ builds the callout environment of the given resource on top of the
// base environment. Resource variables override base variables of the same
// name. The resource is encoded with sorted keys, so its variables come in
// sorted key order.
func (i *Invoker) Environ(obj *unstructured.Unstructured) ([]string, error) {
	raw, err := obj.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode resource")
	}
	vars, err := flatten.Document(raw, EnvResource)
	if err != nil {
		return nil, errors.Wrap(err, "failed to flatten resource")
	}

	base := i.environ()
	env := make([]string, 0, len(base)+len(vars)+2)
	env = append(env, base...)
	env = append(env, EnvDollar+"=$")
	env = append(env, flatten.Environ(vars)...)
	env = append(env, EnvResource+"="+string(raw))
	return env, nil
}

// Invoke runs the executable at path with the resource in its environment and
// returns the status document it printed. An empty output results in a nil
// status. Invoke blocks until the executable exits.
func (i *Invoker) Invoke(ctx context.Context, path string, obj *unstructured.Unstructured) (interface{}, error) {
	log := ctrl.LoggerFrom(ctx).WithValues("callout", path)

	env, err := i.Environ(obj)
	if err != nil {
		return nil, err
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path)
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info("running callout")
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		calloutDuration.WithLabelValues(filepath.Base(path), resultFailure).Observe(elapsed.Seconds())
		failed := &FailedError{Path: path, ExitCode: -1, Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			failed.ExitCode = exitErr.ExitCode()
		}
		log.Info("callout failed", "exitCode", failed.ExitCode, "stderr", stderr.String())
		return nil, failed
	}
	calloutDuration.WithLabelValues(filepath.Base(path), resultSuccess).Observe(elapsed.Seconds())

	log.V(1).Info("callout finished", "duration", elapsed.String(), "stdout", stdout.String(), "stderr", stderr.String())

	status, err := ParseStatus(stdout.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid output of %s", path)
	}
	return status, nil
}

// ParseStatus decodes a YAML or JSON status document. Blank input decodes to
// nil.
func ParseStatus(out []byte) (interface{}, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	var status interface{}
	if err := yaml.Unmarshal(out, &status); err != nil {
		return nil, err
	}
	return status, nil
}
