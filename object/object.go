package object

import (
	"reflect"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// Identity is the identity of a resource captured when its worker is
// spawned. UID groups snapshots in-process, Namespace and Name address the
// resource in API calls.
type Identity struct {
	types.NamespacedName
	UID types.UID
}

// IdentityOf returns the Identity of the given object.
func IdentityOf(obj metav1.Object) Identity {
	return Identity{
		NamespacedName: types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()},
		UID:            obj.GetUID(),
	}
}

// KeysAndValues returns the identity as logger key/value pairs.
func (i Identity) KeysAndValues() []interface{} {
	return []interface{}{"namespace", i.Namespace, "name", i.Name, "uid", string(i.UID)}
}

// IsTerminating returns true if the object has been marked for deletion.
func IsTerminating(obj metav1.Object) bool {
	return !obj.GetDeletionTimestamp().IsZero()
}

// HasFinalizer returns true if obj has the named finalizer.
func HasFinalizer(obj metav1.Object, name string) bool {
	return contains(obj.GetFinalizers(), name)
}

// WithFinalizer returns a copy of finalizers with name appended, if it isn't
// already present.
func WithFinalizer(finalizers []string, name string) []string {
	result := make([]string, 0, len(finalizers)+1)
	result = append(result, finalizers...)
	if contains(finalizers, name) {
		return result
	}
	return append(result, name)
}

// WithoutFinalizer returns a copy of finalizers without name. The result is
// never nil so that it encodes as an empty list.
func WithoutFinalizer(finalizers []string, name string) []string {
	result := make([]string, 0, len(finalizers))
	for _, f := range finalizers {
		if f != name {
			result = append(result, f)
		}
	}
	return result
}

// IsEmptyValue reports whether a decoded document value carries no
// information: nil, false, zero numbers, and empty strings, lists and maps.
func IsEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmptyValue(rv.Elem().Interface())
	}
	return false
}

func contains(slice []string, s string) bool {
	for _, element := range slice {
		if element == s {
			return true
		}
	}
	return false
}
