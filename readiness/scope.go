package readiness

import (
	"fmt"
	"log/slog"

	"k8s.io/client-go/kubernetes"
)

// DefaultAppLabel is the pod label matched by app queries.
const DefaultAppLabel = "app"

// Scope carries what every lookup needs: the API client, the
// namespace of the current query and where to log.
type Scope struct {
	Client    kubernetes.Interface
	Namespace string
	AppLabel  string
	Logger    *slog.Logger
}

func (s Scope) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}

	return s.Logger
}

func (s Scope) appLabel() string {
	if s.AppLabel == "" {
		return DefaultAppLabel
	}

	return s.AppLabel
}

// Verdict is the answer of one readiness evaluation.
type Verdict struct {
	Ready  bool
	Reason string
}

func readyf(format string, args ...any) Verdict {
	return Verdict{Ready: true, Reason: fmt.Sprintf(format, args...)}
}

func notReadyf(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// lookupFailed logs err and degrades it to a not-ready
// verdict so the poll loop retries.
func lookupFailed(
	sc Scope,
	what string,
	name string,
	err error,
) Verdict {
	sc.logger().Warn(
		"lookup failed",
		"resource", what,
		"name", name,
		"namespace", sc.Namespace,
		"error", err,
	)

	return notReadyf("%s %s: %v", what, name, err)
}
