package config

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: https://127.0.0.1:6443
contexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: abc
`

func withInClusterConfig(t *testing.T, fn func() (*rest.Config, error)) {
	t.Helper()
	orig := inClusterConfig
	inClusterConfig = fn
	t.Cleanup(func() { inClusterConfig = orig })
}

func configFlags(path string) *genericclioptions.ConfigFlags {
	flags := genericclioptions.NewConfigFlags(false)
	flags.KubeConfig = &path
	return flags
}

func TestRESTConfigPrefersInCluster(t *testing.T) {
	withInClusterConfig(t, func() (*rest.Config, error) {
		return &rest.Config{Host: "https://10.0.0.1:443"}, nil
	})

	cfg, err := RESTConfig(configFlags(filepath.Join(t.TempDir(), "missing")), ctrl.Log)
	assert.NoError(t, err)
	assert.Equal(t, "https://10.0.0.1:443", cfg.Host)
}

func TestRESTConfigFallsBackToKubeconfig(t *testing.T) {
	withInClusterConfig(t, func() (*rest.Config, error) {
		return nil, rest.ErrNotInCluster
	})

	path := filepath.Join(t.TempDir(), "config")
	assert.NoError(t, ioutil.WriteFile(path, []byte(testKubeconfig), 0600))

	cfg, err := RESTConfig(configFlags(path), ctrl.Log)
	assert.NoError(t, err)
	assert.Equal(t, "https://127.0.0.1:6443", cfg.Host)
	assert.Equal(t, "abc", cfg.BearerToken)
}

func TestRESTConfigNoConfiguration(t *testing.T) {
	withInClusterConfig(t, func() (*rest.Config, error) {
		return nil, rest.ErrNotInCluster
	})

	_, err := RESTConfig(configFlags(filepath.Join(t.TempDir(), "missing")), ctrl.Log)
	assert.True(t, errors.Is(err, ErrNoConfiguration))
}
