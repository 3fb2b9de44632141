package controller

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/side8/k8s-operator/object"
)

// resourceQueue holds the snapshots of one resource that haven't been
// reconciled yet. It is not safe for concurrent use; the Router guards it.
type resourceQueue struct {
	id    object.Identity
	items []*unstructured.Unstructured
}

func newResourceQueue(id object.Identity) *resourceQueue {
	return &resourceQueue{id: id}
}

func (q *resourceQueue) push(obj *unstructured.Unstructured) {
	q.items = append(q.items, obj)
}

func (q *resourceQueue) len() int {
	return len(q.items)
}

// latest empties the queue and returns the newest snapshot along with the
// number of older ones that were discarded. It returns nil for an empty
// queue.
func (q *resourceQueue) latest() (*unstructured.Unstructured, int) {
	n := len(q.items)
	if n == 0 {
		return nil, 0
	}
	obj := q.items[n-1]
	q.items = nil
	return obj, n - 1
}

// clear drops all snapshots and returns how many there were.
func (q *resourceQueue) clear() int {
	n := len(q.items)
	q.items = nil
	return n
}
