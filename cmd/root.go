// Package cmd implements the command line of the operator.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-logr/logr"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/side8/k8s-operator/callout"
	"github.com/side8/k8s-operator/config"
	"github.com/side8/k8s-operator/controller"
	"github.com/side8/k8s-operator/discovery/cluster"
	"github.com/side8/k8s-operator/gateway"
	"github.com/side8/k8s-operator/runnable"
	"github.com/side8/k8s-operator/scheduler"
	"github.com/side8/k8s-operator/telemetry"
	"github.com/side8/k8s-operator/telemetry/export"
)

// Name of the operator in logs, events and traces.
const operatorName = "side8-operator"

// Oldest cluster version the operator is tested against.
const minClusterVersion = "v1.16.0"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

// NewRootCommand returns the operator command.
func NewRootCommand() *cobra.Command {
	o := config.NewOptions()
	kubeFlags := genericclioptions.NewConfigFlags(true)

	cmd := &cobra.Command{
		Use:   operatorName,
		Short: "Manage a custom resource with apply and delete executables",
		Long: `side8-operator watches one custom resource type and hands every
resource to an apply executable, writing its output back as the resource
status. A finalizer keeps deleted resources around until the delete
executable reports that cleanup is done.

The resource is passed to the executables in the environment, as K8S
holding the JSON document and as flattened K8S_<PATH> variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			return run(ctrl.SetupSignalHandler(), o, kubeFlags)
		},
	}

	o.AddFlags(cmd.Flags())
	kubeFlags.AddFlags(cmd.Flags())

	return cmd
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if errors.Is(err, config.ErrNoConfiguration) {
			fmt.Fprintln(os.Stderr, "No Kubernetes configuration found")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, o *config.Options, getter genericclioptions.RESTClientGetter) error {
	level, err := config.ParseLogLevel(o.LogLevel)
	if err != nil {
		return err
	}
	ctrl.SetLogger(zap.New(zap.Level(level)))
	setupLog := ctrl.Log.WithName("setup")

	cfg, err := config.RESTConfig(getter, setupLog)
	if err != nil {
		return err
	}

	telemetryShutdown, err := export.Install(o.Tracing, operatorName)
	if err != nil {
		return pkgerrors.Wrap(err, "unable to setup telemetry exporter")
	}
	defer telemetryShutdown()

	gvr := o.GroupVersionResource()
	statusSubresource, err := detectStatusSubresource(ctx, cfg, o, gvr, setupLog)
	if err != nil {
		return err
	}

	mgr, err := ctrl.NewManager(cfg, ctrl.Options{
		Scheme:                  scheme,
		MetricsBindAddress:      o.MetricsBindAddress,
		HealthProbeBindAddress:  o.HealthProbeBindAddress,
		LeaderElection:          o.LeaderElect,
		LeaderElectionID:        o.LeaderElectionID(),
		LeaderElectionNamespace: o.LeaderElectionNamespace,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "unable to create manager")
	}
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return pkgerrors.Wrap(err, "unable to set up health check")
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return pkgerrors.Wrap(err, "unable to set up ready check")
	}

	dc, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return pkgerrors.Wrap(err, "unable to create dynamic client")
	}
	gw := gateway.New(dc, gvr,
		gateway.WithLogger(ctrl.Log.WithName("gateway")),
		gateway.WithResyncPeriod(o.ResyncPeriod),
	)

	reconcilerLog := ctrl.Log.WithName("reconciler")
	reconciler := controller.NewReconciler(
		callout.NewInvoker(callout.WithTimeout(o.CalloutTimeout)),
		gw,
		controller.WithName(gvr.GroupResource().String()),
		controller.WithLogger(reconcilerLog),
		controller.WithCallouts(o.ApplyPath, o.DeletePath),
		controller.WithStatusSubresource(statusSubresource),
		controller.WithEventRecorder(mgr.GetEventRecorderFor(operatorName)),
		controller.WithInstrumentation(telemetry.NewInstrumentation(operatorName, reconcilerLog)),
	)
	sched := scheduler.New(
		scheduler.WithLimit(o.MaxWorkers),
		scheduler.WithLogger(ctrl.Log.WithName("scheduler")),
	)
	router := controller.NewRouter(reconciler, sched, ctrl.Log.WithName("router"))

	// Running callouts are allowed to finish after the manager stops.
	var wg sync.WaitGroup
	if err := mgr.Add(runnable.NewEngine(gw, router, sched, true, &wg, ctrl.Log.WithName("engine"))); err != nil {
		return pkgerrors.Wrap(err, "unable to add engine")
	}

	setupLog.Info("starting manager",
		"resource", gvr.String(),
		"apply", o.ApplyPath,
		"delete", o.DeletePath,
		"maxWorkers", o.MaxWorkers,
		"statusSubresource", statusSubresource,
	)
	return startManager(ctx, mgr, &wg)
}

// startManager runs mgr until ctx is done. It returns once the components
// tracked by wg have stopped, also when the manager fails.
func startManager(ctx context.Context, mgr manager.Runnable, wg *sync.WaitGroup) error {
	defer wg.Wait()
	if err := mgr.Start(ctx); err != nil {
		return pkgerrors.Wrap(err, "problem running manager")
	}
	return nil
}

// detectStatusSubresource reports whether status patches go to the status
// subresource. In auto mode the cluster is asked. Detection failures are not
// fatal; status is then patched on the resource itself.
func detectStatusSubresource(ctx context.Context, cfg *rest.Config, o *config.Options, gvr schema.GroupVersionResource, log logr.Logger) (bool, error) {
	dc, err := cluster.New(cfg)
	if err != nil {
		return false, pkgerrors.Wrap(err, "unable to create discovery client")
	}

	if version, err := dc.GetClusterVersion(); err != nil {
		log.Error(err, "unable to get cluster version")
	} else {
		log.Info("connected to cluster", "version", version)
		if cmp, err := dc.ClusterVersionCompare(minClusterVersion); err == nil && cmp < 0 {
			log.Info("cluster is older than the oldest tested version", "minVersion", minClusterVersion)
		}
	}

	if found, err := dc.HasResource(gvr); err != nil {
		log.Error(err, "unable to discover resource", "resource", gvr.String())
	} else if !found {
		log.Info("resource is not served yet, waiting for it to appear", "resource", gvr.String())
	}

	switch o.StatusSubresource {
	case config.StatusSubresourceTrue:
		return true, nil
	case config.StatusSubresourceFalse:
		return false, nil
	}

	enabled, err := dc.HasStatusSubresource(ctx, gvr)
	if err != nil {
		log.Error(err, "unable to detect status subresource, patching status on the resource")
		return false, nil
	}
	return enabled, nil
}
