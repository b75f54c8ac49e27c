// Package report renders the outcome of a readiness run as
// JSON.
package report
