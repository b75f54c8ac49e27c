// Package readiness decides whether a named workload has
// reached a ready or completed state. A Query names a pod,
// container, app label, service, job or mesh job container;
// the Checker locates the matching pods, resolves the
// controller that owns them and evaluates that controller's
// readiness predicate. The Engine repeats the check under a
// deadline and processes batches of queries in a fixed order.
//
// The package only reads cluster state.
package readiness
