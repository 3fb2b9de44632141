package config

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/rest"
)

// ErrNoConfiguration is returned when neither in-cluster nor kubeconfig
// credentials are available.
var ErrNoConfiguration = errors.New("no Kubernetes configuration found")

// inClusterConfig is replaced in tests.
var inClusterConfig = rest.InClusterConfig

// RESTConfig returns the configuration to reach the cluster. The service
// account of the pod is preferred; otherwise the kubeconfig resolved by
// getter is used.
func RESTConfig(getter genericclioptions.RESTClientGetter, log logr.Logger) (*rest.Config, error) {
	cfg, err := inClusterConfig()
	if err == nil {
		log.Info("configured in cluster with service account")
		return cfg, nil
	}
	log.V(1).Info("in-cluster configuration unavailable", "reason", err.Error())

	cfg, err = getter.ToRESTConfig()
	if err != nil {
		log.V(1).Info("kubeconfig unavailable", "reason", err.Error())
		return nil, ErrNoConfiguration
	}
	log.Info("configured via kubeconfig file")
	return cfg, nil
}
