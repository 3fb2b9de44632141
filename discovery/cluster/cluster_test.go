package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	fakeclient "k8s.io/client-go/kubernetes/fake"
)

var databases = schema.GroupVersionResource{Group: "side8.io", Version: "v1", Resource: "databases"}

func TestClusterVersionCompare(t *testing.T) {
	cases := []struct {
		name           string
		currentVersion string
		targetVersion  string
		wantResult     int
	}{
		{
			name:           "equal",
			currentVersion: "v1.20.0",
			targetVersion:  "v1.20.0",
			wantResult:     0,
		},
		{
			name:           "greater than",
			currentVersion: "v1.21.0",
			targetVersion:  "v1.20.0",
			wantResult:     1,
		},
		{
			name:           "less than",
			currentVersion: "v1.15.0",
			targetVersion:  "v1.16.0",
			wantResult:     -1,
		},
		{
			name:           "versions with suffix",
			currentVersion: "v1.20.0-gke-xyz",
			targetVersion:  "v1.20.0-foo",
			wantResult:     0,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clientset := fakeclient.NewSimpleClientset()
			fdiscovery, ok := clientset.Discovery().(*fakediscovery.FakeDiscovery)
			assert.True(t, ok)

			fdiscovery.FakedServerVersion = &version.Info{GitVersion: tc.currentVersion}
			dc := NewFromDiscoveryClient(fdiscovery, nil)

			res, err := dc.ClusterVersionCompare(tc.targetVersion)
			assert.Nil(t, err)
			assert.Equal(t, tc.wantResult, res)
		})
	}
}

func TestFindResource(t *testing.T) {
	cases := []struct {
		name            string
		apiResourceList []*metav1.APIResourceList
		wantKind        string
		wantStatus      bool
	}{
		{
			name:            "empty api resource list",
			apiResourceList: []*metav1.APIResourceList{},
		},
		{
			name: "have resource",
			apiResourceList: []*metav1.APIResourceList{
				{
					GroupVersion: "side8.io/v1",
					APIResources: []metav1.APIResource{
						{Name: "databases", Kind: "Database", Namespaced: true},
						{Name: "caches", Kind: "Cache", Namespaced: true},
					},
				},
			},
			wantKind: "Database",
		},
		{
			name: "have resource with status subresource",
			apiResourceList: []*metav1.APIResourceList{
				{
					GroupVersion: "side8.io/v1",
					APIResources: []metav1.APIResource{
						{Name: "databases", Kind: "Database", Namespaced: true},
						{Name: "databases/status", Kind: "Database", Namespaced: true},
					},
				},
			},
			wantKind:   "Database",
			wantStatus: true,
		},
		{
			name: "have resource but different version",
			apiResourceList: []*metav1.APIResourceList{
				{
					GroupVersion: "side8.io/v2",
					APIResources: []metav1.APIResource{
						{Name: "databases", Kind: "Database", Namespaced: true},
					},
				},
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client := fakeclient.NewSimpleClientset()
			client.Resources = tc.apiResourceList

			dc := NewFromDiscoveryClient(client.Discovery(), nil)

			r, err := dc.FindResource(databases)
			assert.Nil(t, err)
			if tc.wantKind == "" {
				assert.Nil(t, r)
			} else if assert.NotNil(t, r) {
				assert.Equal(t, tc.wantKind, r.Kind)
			}

			exists, err := dc.HasResource(databases)
			assert.Nil(t, err)
			assert.Equal(t, tc.wantKind != "", exists)

			status, err := dc.HasStatusSubresource(context.TODO(), databases)
			assert.Nil(t, err)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestHasStatusSubresourceFromCRD(t *testing.T) {
	crd := func(versions ...apiextensionsv1.CustomResourceDefinitionVersion) *apiextensionsv1.CustomResourceDefinition {
		return &apiextensionsv1.CustomResourceDefinition{
			ObjectMeta: metav1.ObjectMeta{Name: "databases.side8.io"},
			Spec: apiextensionsv1.CustomResourceDefinitionSpec{
				Group:    "side8.io",
				Versions: versions,
			},
		}
	}
	withStatus := &apiextensionsv1.CustomResourceSubresources{
		Status: &apiextensionsv1.CustomResourceSubresourceStatus{},
	}

	cases := []struct {
		name string
		crd  *apiextensionsv1.CustomResourceDefinition
		want bool
	}{
		{
			name: "served version with status",
			crd:  crd(apiextensionsv1.CustomResourceDefinitionVersion{Name: "v1", Subresources: withStatus}),
			want: true,
		},
		{
			name: "served version without status",
			crd:  crd(apiextensionsv1.CustomResourceDefinitionVersion{Name: "v1"}),
			want: false,
		},
		{
			name: "status on another version",
			crd: crd(
				apiextensionsv1.CustomResourceDefinitionVersion{Name: "v1"},
				apiextensionsv1.CustomResourceDefinitionVersion{Name: "v2", Subresources: withStatus},
			),
			want: false,
		},
		{
			name: "no crd falls back to discovery",
			want: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			crds := apiextensionsfake.NewSimpleClientset()
			if tc.crd != nil {
				crds = apiextensionsfake.NewSimpleClientset(tc.crd)
			}
			client := fakeclient.NewSimpleClientset()

			dc := NewFromDiscoveryClient(client.Discovery(), crds)
			got, err := dc.HasStatusSubresource(context.TODO(), databases)
			assert.Nil(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
