// Package gateway is the engine's view of the Kubernetes API. It lists and
// watches one custom resource collection across all namespaces, reconnecting
// whenever the watch ends, and sends merge patches and deletions to single
// resources of that collection.
package gateway
