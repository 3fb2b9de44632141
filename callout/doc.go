// Package callout runs the external apply and delete executables of an
// operator. The watched resource is handed to the executable through its
// environment: the full JSON document in K8S, every leaf of the document as a
// flattened K8S_* variable and a literal dollar sign in _DOLLAR for shells
// that need one. A successful executable may print the new resource status as
// a YAML or JSON document on its standard output.
package callout
