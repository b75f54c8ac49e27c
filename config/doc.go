// Package config assembles the readiness run configuration
// from built-in defaults, an optional YAML file and command
// line flags, validates it and turns the selector lists into
// ordered readiness queries.
package config
