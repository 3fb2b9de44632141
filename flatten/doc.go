// Package flatten converts structured documents into flat environment
// variable sets. Nested mapping keys and sequence indexes are joined with an
// underscore and upper-cased, so that a resource like
//
//	{"spec": {"replicas": 3, "ports": [80, 443]}}
//
// flattened with the prefix "K8S" becomes
//
//	K8S_SPEC_REPLICAS=3
//	K8S_SPEC_PORTS_0=80
//	K8S_SPEC_PORTS_1=443
//
// Booleans become "1" or "0" and nulls become the empty string. Document keeps
// the key order of its input; Value sorts the keys of Go maps.
package flatten
