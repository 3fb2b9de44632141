// Package config holds the command line configuration of the operator and
// the discovery of cluster credentials.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime/schema"
	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/side8/k8s-operator/controller"
	"github.com/side8/k8s-operator/scheduler"
	"github.com/side8/k8s-operator/telemetry/export"
)

// Status subresource modes.
const (
	StatusSubresourceAuto  = "auto"
	StatusSubresourceTrue  = "true"
	StatusSubresourceFalse = "false"
)

// Defaults.
const (
	DefaultLogLevel               = "info"
	DefaultMetricsBindAddress     = ":8080"
	DefaultHealthProbeBindAddress = ":8081"
)

// Options is the configuration of the operator.
type Options struct {
	// FQDN is the API group of the watched resource.
	FQDN string
	// Version is the API version of the watched resource.
	Version string
	// Resource is the plural name of the watched resource.
	Resource string

	ApplyPath  string
	DeletePath string

	LogLevel string

	// MaxWorkers bounds the number of resources reconciled at once.
	MaxWorkers int
	// CalloutTimeout bounds a single callout. Zero means no timeout.
	CalloutTimeout time.Duration
	// ResyncPeriod forces a re-list of the resources. Zero leaves the watch
	// timeout to the server.
	ResyncPeriod time.Duration
	// StatusSubresource is one of auto, true or false.
	StatusSubresource string

	MetricsBindAddress      string
	HealthProbeBindAddress  string
	LeaderElect             bool
	LeaderElectionNamespace string

	// Tracing selects the trace exporter. Empty defers to the environment.
	Tracing string
}

// NewOptions returns Options with the defaults set.
func NewOptions() *Options {
	return &Options{
		ApplyPath:              controller.DefaultApplyPath,
		DeletePath:             controller.DefaultDeletePath,
		LogLevel:               DefaultLogLevel,
		MaxWorkers:             scheduler.DefaultLimit,
		StatusSubresource:      StatusSubresourceAuto,
		MetricsBindAddress:     DefaultMetricsBindAddress,
		HealthProbeBindAddress: DefaultHealthProbeBindAddress,
	}
}

// AddFlags binds the options to the flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.FQDN, "fqdn", o.FQDN, "API group of the watched resource, e.g. side8.io.")
	fs.StringVar(&o.Version, "version", o.Version, "API version of the watched resource, e.g. v1.")
	fs.StringVar(&o.Resource, "resource", o.Resource, "Plural name of the watched resource, e.g. databases.")
	fs.StringVar(&o.ApplyPath, "apply", o.ApplyPath, "Executable run to apply a resource.")
	fs.StringVar(&o.DeletePath, "delete", o.DeletePath, "Executable run to clean up a deleted resource.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn, error or a numeric verbosity.")
	fs.IntVar(&o.MaxWorkers, "max-workers", o.MaxWorkers, "Maximum number of resources reconciled concurrently.")
	fs.DurationVar(&o.CalloutTimeout, "callout-timeout", o.CalloutTimeout, "Kill callouts running longer than this. 0 disables the timeout.")
	fs.DurationVar(&o.ResyncPeriod, "resync-period", o.ResyncPeriod, "Re-list all resources this often. 0 uses the server's watch timeout.")
	fs.StringVar(&o.StatusSubresource, "status-subresource", o.StatusSubresource, "Patch status through the status subresource: auto, true or false.")
	fs.StringVar(&o.MetricsBindAddress, "metrics-bind-address", o.MetricsBindAddress, "The address the metric endpoint binds to.")
	fs.StringVar(&o.HealthProbeBindAddress, "health-probe-bind-address", o.HealthProbeBindAddress, "The address the probe endpoint binds to.")
	fs.BoolVar(&o.LeaderElect, "leader-elect", o.LeaderElect, "Enable leader election. "+
		"Enabling this will ensure there is only one active operator per resource.")
	fs.StringVar(&o.LeaderElectionNamespace, "leader-election-namespace", o.LeaderElectionNamespace, "Namespace of the leader election lock.")
	fs.StringVar(&o.Tracing, "tracing", o.Tracing, "Trace exporter: none, jaeger or otlp. Defaults to $TRACING_EXPORTER.")
}

// Validate checks the options and returns all the problems found.
func (o *Options) Validate() error {
	var errs []error

	required := []struct {
		flag, value string
	}{
		{"fqdn", o.FQDN},
		{"version", o.Version},
		{"resource", o.Resource},
		{"apply", o.ApplyPath},
		{"delete", o.DeletePath},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("--%s is required", r.flag))
		}
	}
	if o.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("--max-workers must be at least 1, got %d", o.MaxWorkers))
	}
	if o.CalloutTimeout < 0 {
		errs = append(errs, fmt.Errorf("--callout-timeout must not be negative, got %s", o.CalloutTimeout))
	}
	if o.ResyncPeriod < 0 {
		errs = append(errs, fmt.Errorf("--resync-period must not be negative, got %s", o.ResyncPeriod))
	}
	switch o.StatusSubresource {
	case StatusSubresourceAuto, StatusSubresourceTrue, StatusSubresourceFalse:
	default:
		errs = append(errs, fmt.Errorf("--status-subresource must be one of auto, true or false, got %q", o.StatusSubresource))
	}
	if _, err := ParseLogLevel(o.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch o.Tracing {
	case "", export.ExporterNone, export.ExporterJaeger, export.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("--tracing must be one of none, jaeger or otlp, got %q", o.Tracing))
	}

	return kerrors.NewAggregate(errs)
}

// GroupVersionResource returns the watched resource.
func (o *Options) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: o.FQDN, Version: o.Version, Resource: o.Resource}
}

// LeaderElectionID returns the name of the leader election lock. Operators
// watching different resources don't compete for it.
func (o *Options) LeaderElectionID() string {
	return fmt.Sprintf("%s.%s.side8-operator", o.Resource, o.FQDN)
}

// ParseLogLevel converts a log level name or a numeric verbosity into a zap
// level. Verbosity n enables logr's V(n).
func ParseLogLevel(level string) (zapcore.Level, error) {
	if n, err := strconv.Atoi(level); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("--log-level verbosity must not be negative, got %d", n)
		}
		return zapcore.Level(-n), nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return 0, fmt.Errorf("--log-level %q is not a level name or verbosity", level)
	}
	return l, nil
}
