// Package server wires configuration, storage tiers, the component registry
// and workspace sessions into the HTTP servers.
//
// Server hosts the workspace API, the event stream and Prometheus metrics.
// StoreServer hosts only the remote layout store, for deployments where
// several workspace servers share one store over HTTP.
package server
