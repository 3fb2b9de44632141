package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func snapshot(rv string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetResourceVersion(rv)
	return obj
}

func TestResourceQueue(t *testing.T) {
	q := newResourceQueue(testIdentity)

	obj, skipped := q.latest()
	assert.Nil(t, obj)
	assert.Equal(t, 0, skipped)

	q.push(snapshot("1"))
	q.push(snapshot("2"))
	q.push(snapshot("3"))
	assert.Equal(t, 3, q.len())

	obj, skipped = q.latest()
	assert.Equal(t, "3", obj.GetResourceVersion())
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 0, q.len())

	q.push(snapshot("4"))
	assert.Equal(t, 1, q.clear())
	obj, _ = q.latest()
	assert.Nil(t, obj)
}
