package readiness

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidQuery is returned for queries with an unknown
// kind or an empty value.
var ErrInvalidQuery = errors.New("invalid query")

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown query kind")

// Kind selects how a query value is matched.
type Kind string

const (
	// KindService matches a service by name and checks the
	// owner of one backing pod.
	KindService Kind = "service"
	// KindContainer matches the first pod declaring a
	// container with that name.
	KindContainer Kind = "container"
	// KindPod matches pods whose name starts with the value.
	KindPod Kind = "pod"
	// KindApp matches pods by application label value.
	KindApp Kind = "app"
	// KindJob matches a job by name.
	KindJob Kind = "job"
	// KindCompletedContainer waits for a container to
	// terminate with reason Completed.
	KindCompletedContainer Kind = "completed-container"
	// KindMeshJobContainer waits for a job's main container to
	// terminate while its pod still runs a proxy sidecar.
	KindMeshJobContainer Kind = "mesh-job-container"
)

// Order is the sequence in which a batch processes kinds.
//
//nolint:gochecknoglobals // fixed batch order
var Order = []Kind{
	KindService,
	KindContainer,
	KindPod,
	KindApp,
	KindJob,
	KindCompletedContainer,
	KindMeshJobContainer,
}

// ParseKind validates s as a query kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(Order, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}

	return k, nil
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

func (k Kind) rank() int {
	return slices.Index(Order, k)
}

// Query names one workload to wait for.
type Query struct {
	Kind      Kind
	Value     string
	Namespace string
}

// String returns "kind/value".
func (q Query) String() string {
	return q.Kind.String() + "/" + q.Value
}

// Validate reports malformed queries.
func (q Query) Validate() error {
	if _, err := ParseKind(q.Kind.String()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidQuery, q, err)
	}

	if q.Value == "" {
		return fmt.Errorf(
			"%w: %s: empty value", ErrInvalidQuery, q.Kind,
		)
	}

	return nil
}

// SortQueries returns a copy of qs ordered by Order. Queries
// of the same kind keep the order they were supplied in.
func SortQueries(qs []Query) []Query {
	out := slices.Clone(qs)

	slices.SortStableFunc(out, func(a, b Query) int {
		return cmp.Compare(a.Kind.rank(), b.Kind.rank())
	})

	return out
}
