package report

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/byte4ever/k8s_readiness/readiness"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

// Entry describes one processed query.
type Entry struct {
	Kind           string  `json:"kind"`
	Name           string  `json:"name"`
	Namespace      string  `json:"namespace"`
	Ready          bool    `json:"ready"`
	Reason         string  `json:"reason,omitempty"`
	Attempts       int     `json:"attempts"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Shutdown       string  `json:"shutdown,omitempty"`
}

// Report is the JSON document written at the end of a run.
type Report struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Queries []Entry `json:"queries"`
}

// New builds the report of a run that produced outcomes and
// ended with runErr.
func New(outcomes []readiness.Outcome, runErr error) Report {
	r := Report{
		Success: runErr == nil,
		Queries: make([]Entry, 0, len(outcomes)),
	}

	if runErr != nil {
		r.Error = runErr.Error()
	}

	for _, o := range outcomes {
		r.Queries = append(r.Queries, Entry{
			Kind:           o.Query.Kind.String(),
			Name:           o.Query.Value,
			Namespace:      o.Query.Namespace,
			Ready:          o.Ready,
			Reason:         o.Reason,
			Attempts:       o.Attempts,
			ElapsedSeconds: o.Elapsed.Seconds(),
			Shutdown:       o.Shutdown,
		})
	}

	return r
}

// Write encodes r as indented JSON.
func (r Report) Write(w io.Writer) error {
	const errCtx = "writing report"

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// WriteFile writes r to path, or to standard output when
// path is Stdout.
func (r Report) WriteFile(path string) error {
	const errCtx = "writing report file"

	if path == Stdout {
		return r.Write(os.Stdout)
	}

	f, err := os.Create(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := r.Write(f); err != nil {
		_ = f.Close() //nolint:errcheck // write error takes precedence

		return fmt.Errorf("%s %s: %w", errCtx, path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, path, err)
	}

	return nil
}
