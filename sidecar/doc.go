// Package sidecar asks a co-located network proxy to shut
// down once the primary workload container has finished. The
// proxy is probed over TCP first so that runs without a proxy
// treat the shutdown as a no-op.
package sidecar
