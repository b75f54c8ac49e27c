package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/k8s_readiness/readiness"
	"github.com/byte4ever/k8s_readiness/sidecar"
	"github.com/byte4ever/k8s_readiness/stamper"
)

// ErrUsage wraps every invalid configuration error.
var ErrUsage = errors.New("usage error")

const (
	// DefaultTimeoutMinutes bounds the wait of each query.
	DefaultTimeoutMinutes = 10.0
	// EnvNamespace names the variable holding the default
	// namespace.
	EnvNamespace = "NAMESPACE"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Selectors lists the workloads to wait for, one list per
// query kind.
type Selectors struct {
	Services            []string `yaml:"services,omitempty"`
	Containers          []string `yaml:"containers,omitempty"`
	Pods                []string `yaml:"pods,omitempty"`
	Apps                []string `yaml:"apps,omitempty"`
	Jobs                []string `yaml:"jobs,omitempty"`
	CompletedContainers []string `yaml:"completedContainers,omitempty"`
	MeshJobContainers   []string `yaml:"meshJobContainers,omitempty"`
}

func (s *Selectors) byKind() map[readiness.Kind]*[]string {
	return map[readiness.Kind]*[]string{
		readiness.KindService:            &s.Services,
		readiness.KindContainer:          &s.Containers,
		readiness.KindPod:                &s.Pods,
		readiness.KindApp:                &s.Apps,
		readiness.KindJob:                &s.Jobs,
		readiness.KindCompletedContainer: &s.CompletedContainers,
		readiness.KindMeshJobContainer:   &s.MeshJobContainers,
	}
}

// Empty reports whether no selector is set.
func (s *Selectors) Empty() bool {
	for _, values := range s.byKind() {
		if len(*values) > 0 {
			return false
		}
	}

	return true
}

// Config is the complete run configuration.
type Config struct {
	Selectors Selectors `yaml:"selectors"`
	// TimeoutMinutes is the deadline of each query.
	TimeoutMinutes float64 `yaml:"timeout"`
	// IntervalSeconds fixes the delay between attempts. Zero
	// selects the jittered band.
	IntervalSeconds float64  `yaml:"interval,omitempty"`
	Namespace       string   `yaml:"namespace,omitempty"`
	AdminURL        string   `yaml:"adminURL,omitempty"`
	AppLabel        string   `yaml:"appLabel,omitempty"`
	Kubeconfig      string   `yaml:"kubeconfig,omitempty"`
	StampInfoFiles  []string `yaml:"stampInfoFiles,omitempty"`
	Report          string   `yaml:"report,omitempty"`
	Pushgateway     string   `yaml:"pushgateway,omitempty"`
	LogLevel        string   `yaml:"logLevel,omitempty"`
	LogFormat       string   `yaml:"logFormat,omitempty"`

	// ShutdownAfterCompleted also stops the proxy sidecar
	// once a completed-container query succeeds.
	ShutdownAfterCompleted bool `yaml:"shutdownAfterCompleted,omitempty"`

	// File is the YAML file the configuration was read from.
	File string `yaml:"-"`
}

// Default returns the built-in configuration. The namespace
// comes from $NAMESPACE.
func Default() Config {
	return Config{
		TimeoutMinutes: DefaultTimeoutMinutes,
		Namespace:      os.Getenv(EnvNamespace),
		AdminURL:       sidecar.DefaultAdminURL,
		AppLabel:       readiness.DefaultAppLabel,
		LogLevel:       "info",
		LogFormat:      FormatText,
	}
}

// LoadFile reads the YAML file at path over cfg. Keys
// missing from the file keep their value in cfg; unknown
// keys are rejected.
func LoadFile(path string, cfg *Config) error {
	const errCtx = "loading config file"

	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := yaml.UnmarshalWithOptions(
		raw, cfg, yaml.DisallowUnknownField(),
	); err != nil {
		return fmt.Errorf(
			"%s %s: %w: %w", errCtx, path, ErrUsage, err,
		)
	}

	cfg.File = path

	return nil
}

// Timeout returns the per-query deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes * float64(time.Minute))
}

// Interval returns the fixed delay between attempts, zero
// when the jittered band applies.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	var lvl slog.Level

	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return lvl
}

// Validate reports the first invalid setting. Every error
// wraps ErrUsage.
func (c *Config) Validate() error {
	const errCtx = "validating config"

	fail := func(format string, args ...any) error {
		return fmt.Errorf(
			"%s: %w: %s",
			errCtx, ErrUsage, fmt.Sprintf(format, args...),
		)
	}

	if c.Selectors.Empty() {
		return fail("no workload to wait for")
	}

	for kind, values := range c.Selectors.byKind() {
		if slices.Contains(*values, "") {
			return fail("empty %s name", kind)
		}
	}

	if !durationInRange(c.TimeoutMinutes, time.Minute) {
		return fail("invalid timeout %v minutes", c.TimeoutMinutes)
	}

	if !durationInRange(c.IntervalSeconds, time.Second) {
		return fail("invalid interval %v seconds", c.IntervalSeconds)
	}

	if c.Namespace == "" {
		return fail(
			"no namespace: set --namespace or $%s", EnvNamespace,
		)
	}

	if u, err := url.Parse(c.AdminURL); err != nil ||
		u.Scheme == "" || u.Host == "" {
		return fail("invalid admin url %q", c.AdminURL)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fail("invalid log level %q", c.LogLevel)
	}

	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		return fail("invalid log format %q", c.LogFormat)
	}

	return nil
}

// durationInRange reports whether v units is a finite,
// non-negative duration representable as time.Duration.
func durationInRange(v float64, unit time.Duration) bool {
	return !math.IsNaN(v) &&
		v >= 0 &&
		v < float64(math.MaxInt64)/float64(unit)
}

// NotifyKinds returns the query kinds whose success stops
// the proxy sidecar.
func (c *Config) NotifyKinds() []readiness.Kind {
	if c.ShutdownAfterCompleted {
		return []readiness.Kind{
			readiness.KindCompletedContainer,
			readiness.KindMeshJobContainer,
		}
	}

	return []readiness.Kind{readiness.KindMeshJobContainer}
}

// Queries returns one query per selector in batch order,
// each value expanded with the variables of env overlaid by
// the stamp files. A value that expands to nothing is a
// usage error.
func (c *Config) Queries(env []string) ([]readiness.Query, error) {
	const errCtx = "building queries"

	stamps, err := stamper.LoadStamps(c.StampInfoFiles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	vars := stamper.Environ(env).Merge(stamps)
	lists := c.Selectors.byKind()

	var queries []readiness.Query

	for _, kind := range readiness.Order {
		for _, value := range *lists[kind] {
			q := readiness.Query{
				Kind:      kind,
				Value:     stamper.Expand(value, vars),
				Namespace: c.Namespace,
			}

			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf(
					"%s: %w: %q: %w", errCtx, ErrUsage, value, err,
				)
			}

			queries = append(queries, q)
		}
	}

	return queries, nil
}
