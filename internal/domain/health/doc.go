// Package health polls the liveness endpoint of network-hosted modules.
//
// A Monitor is driven entirely by the health-check config carried on the
// module's component link. With checking disabled the status is healthy
// and no requests are issued. Polling is single-flight and every request
// is aborted when its timeout expires.
package health
