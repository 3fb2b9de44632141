// Package object contains helpers for working with the metadata of watched
// resources: identity capture, finalizer set operations and emptiness checks
// of decoded status documents.
package object
