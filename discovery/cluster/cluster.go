// Package cluster inspects the API server the engine runs against: its
// version, the served resources and the definition of the watched custom
// resource.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
)

const statusSubresource = "status"

// DiscoveryClient is a cluster discovery client.
type DiscoveryClient struct {
	discovery.DiscoveryInterface

	// crds reads CustomResourceDefinitions. Optional.
	crds apiextensionsclient.Interface
}

// New returns a DiscoveryClient given a rest config.
func New(c *rest.Config) (*DiscoveryClient, error) {
	dc, err := discovery.NewDiscoveryClientForConfig(c)
	if err != nil {
		return nil, err
	}
	crds, err := apiextensionsclient.NewForConfig(c)
	if err != nil {
		return nil, err
	}
	return &DiscoveryClient{
		DiscoveryInterface: dc,
		crds:               crds,
	}, nil
}

// NewFromDiscoveryClient returns a DiscoveryClient given an implementation of
// the DiscoveryInterface. crds is optional; without it the CRD is never read
// and subresources are found through discovery only.
func NewFromDiscoveryClient(discoveryClient discovery.DiscoveryInterface, crds apiextensionsclient.Interface) *DiscoveryClient {
	return &DiscoveryClient{
		DiscoveryInterface: discoveryClient,
		crds:               crds,
	}
}

// GetClusterVersion returns the base version of the cluster, without any extra
// information.
func (d *DiscoveryClient) GetClusterVersion() (string, error) {
	version, err := d.ServerVersion()
	if err != nil {
		return "", err
	}

	return basicVersion(version.String())
}

// ClusterVersionCompare compares the cluster version with a given target
// version.
// 0  = cluster version equal to target version
// -1 = cluster version less than target version
// 1  = cluster version greater than target version
func (d *DiscoveryClient) ClusterVersionCompare(targetVersion string) (int, error) {
	currentVersion, err := d.GetClusterVersion()
	if err != nil {
		return 0, err
	}
	cv, err := semver.Parse(currentVersion)
	if err != nil {
		return 0, err
	}

	tvSimple, err := basicVersion(targetVersion)
	if err != nil {
		return 0, err
	}
	tv, err := semver.Parse(tvSimple)
	if err != nil {
		return 0, err
	}

	return cv.Compare(tv), nil
}

// basicVersion parses a given version string and returns only the basic
// version info (Major.Minor.Patch).
func basicVersion(version string) (string, error) {
	ver, err := semver.ParseTolerant(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", ver.Major, ver.Minor, ver.Patch), nil
}

// resources returns the names of the resources served for the group version
// of gvr. Groups that failed discovery are skipped, as long as some did not.
func (d *DiscoveryClient) resources(gvr schema.GroupVersionResource) ([]metav1.APIResource, error) {
	_, apiLists, err := d.ServerGroupsAndResources()
	if err != nil && !discovery.IsGroupDiscoveryFailedError(err) {
		return nil, err
	}
	gv := gvr.GroupVersion().String()
	for _, apiList := range apiLists {
		if apiList != nil && apiList.GroupVersion == gv {
			return apiList.APIResources, nil
		}
	}
	return nil, nil
}

// FindResource returns the API resource served under the plural name of gvr,
// or nil if the server doesn't know it.
func (d *DiscoveryClient) FindResource(gvr schema.GroupVersionResource) (*metav1.APIResource, error) {
	rs, err := d.resources(gvr)
	if err != nil {
		return nil, err
	}
	for i := range rs {
		if rs[i].Name == gvr.Resource {
			return &rs[i], nil
		}
	}
	return nil, nil
}

// HasResource checks if the resource is served by the API server.
func (d *DiscoveryClient) HasResource(gvr schema.GroupVersionResource) (bool, error) {
	r, err := d.FindResource(gvr)
	return r != nil, err
}

// HasStatusSubresource checks if status updates of gvr have to go through the
// status subresource. The CustomResourceDefinition is consulted first. When it
// can't be read, discovery of "<plural>/status" decides.
func (d *DiscoveryClient) HasStatusSubresource(ctx context.Context, gvr schema.GroupVersionResource) (bool, error) {
	if d.crds != nil {
		crd, err := d.crds.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, gvr.GroupResource().String(), metav1.GetOptions{})
		switch {
		case err == nil:
			return crdHasStatusSubresource(crd, gvr.Version), nil
		case apierrors.IsNotFound(err), apierrors.IsForbidden(err):
		default:
			return false, errors.Wrapf(err, "failed to get CustomResourceDefinition %s", gvr.GroupResource())
		}
	}

	rs, err := d.resources(gvr)
	if err != nil {
		return false, err
	}
	want := strings.Join([]string{gvr.Resource, statusSubresource}, "/")
	for _, r := range rs {
		if r.Name == want {
			return true, nil
		}
	}
	return false, nil
}

func crdHasStatusSubresource(crd *apiextensionsv1.CustomResourceDefinition, version string) bool {
	for _, v := range crd.Spec.Versions {
		if v.Name == version {
			return v.Subresources != nil && v.Subresources.Status != nil
		}
	}
	return false
}
