// Package metrics counts readiness attempts, outcomes and
// sidecar shutdowns in a private Prometheus registry that is
// pushed to a Pushgateway when a run ends.
package metrics
