package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flag names shared by Bind and Resolve.
const (
	flagService            = "service-name"
	flagContainer          = "container-name"
	flagPod                = "pod-name"
	flagApp                = "app-name"
	flagJob                = "job-name"
	flagCompletedContainer = "completed-container"
	flagMeshJobContainer   = "mesh-job-container"
	flagTimeout            = "timeout"
	flagInterval           = "interval"
	flagNamespace          = "namespace"
	flagAdminURL           = "admin-url"
	flagAppLabel           = "app-label"
	flagKubeconfig         = "kubeconfig"
	flagConfig             = "config"
	flagStampInfoFile      = "stamp-info-file"
	flagReport             = "report"
	flagPushgateway        = "pushgateway"
	flagLogLevel           = "log-level"
	flagLogFormat          = "log-format"
	flagShutdownCompleted  = "shutdown-after-completed"
)

// Bind registers every setting on fs and returns the Config
// the parsed values land in. Defaults come from Default.
//
//nolint:funlen // flag table
func Bind(fs *pflag.FlagSet) *Config {
	def := Default()
	c := &Config{}

	fs.StringArrayVarP(
		&c.Selectors.Services, flagService, "s", nil,
		"service whose backing pod owner must be ready (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.Containers, flagContainer, "c", nil,
		"container whose pod owner must be ready (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.Pods, flagPod, "p", nil,
		"pod name prefix whose owners must be ready (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.Apps, flagApp, "a", nil,
		"app label value whose pod owners must be ready (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.Jobs, flagJob, "j", nil,
		"job that must complete (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.CompletedContainers, flagCompletedContainer, "C", nil,
		"container that must terminate with reason Completed (repeatable)",
	)
	fs.StringArrayVarP(
		&c.Selectors.MeshJobContainers, flagMeshJobContainer, "m", nil,
		"job container to wait for before stopping the mesh sidecar (repeatable)",
	)

	fs.Float64VarP(
		&c.TimeoutMinutes, flagTimeout, "t", def.TimeoutMinutes,
		"per-query timeout in minutes",
	)
	fs.Float64VarP(
		&c.IntervalSeconds, flagInterval, "i", def.IntervalSeconds,
		"fixed delay between attempts in seconds (0: jitter 5s..11s)",
	)
	fs.StringVarP(
		&c.Namespace, flagNamespace, "n", def.Namespace,
		"namespace to look in (default $NAMESPACE)",
	)
	fs.StringVarP(
		&c.AdminURL, flagAdminURL, "u", def.AdminURL,
		"sidecar shutdown endpoint",
	)
	fs.StringVar(
		&c.AppLabel, flagAppLabel, def.AppLabel,
		"pod label matched by --app-name",
	)
	fs.StringVar(
		&c.Kubeconfig, flagKubeconfig, "",
		"kubeconfig path (default $KUBECONFIG, in-cluster, ~/.kube/config)",
	)
	fs.StringVar(
		&c.File, flagConfig, "",
		"YAML configuration file",
	)
	fs.StringArrayVar(
		&c.StampInfoFiles, flagStampInfoFile, nil,
		"file of \"KEY VALUE\" lines for {KEY} expansion (repeatable)",
	)
	fs.StringVar(
		&c.Report, flagReport, "",
		"write a JSON run report to this path (- for stdout)",
	)
	fs.StringVar(
		&c.Pushgateway, flagPushgateway, "",
		"Prometheus Pushgateway URL to push run metrics to",
	)
	fs.BoolVar(
		&c.ShutdownAfterCompleted, flagShutdownCompleted, false,
		"also stop the mesh sidecar once a --completed-container is done",
	)
	fs.StringVar(
		&c.LogLevel, flagLogLevel, def.LogLevel,
		"log level: debug, info, warn, error",
	)
	fs.StringVar(
		&c.LogFormat, flagLogFormat, def.LogFormat,
		"log format: text, json",
	)

	return c
}

// Resolve builds the effective configuration from fs after
// parsing. The file named by --config is applied over the
// defaults, then every flag set on the command line
// overrides it. Selector lists and stamp files from both
// sources are concatenated.
func Resolve(fs *pflag.FlagSet, flags *Config) (Config, error) {
	const errCtx = "resolving config"

	cfg := Default()

	if flags.File != "" {
		if err := LoadFile(flags.File, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		overlay(&cfg, flags, f.Name)
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

func overlay(cfg, flags *Config, name string) {
	s, fl := &cfg.Selectors, &flags.Selectors

	switch name {
	case flagService:
		s.Services = append(s.Services, fl.Services...)
	case flagContainer:
		s.Containers = append(s.Containers, fl.Containers...)
	case flagPod:
		s.Pods = append(s.Pods, fl.Pods...)
	case flagApp:
		s.Apps = append(s.Apps, fl.Apps...)
	case flagJob:
		s.Jobs = append(s.Jobs, fl.Jobs...)
	case flagCompletedContainer:
		s.CompletedContainers = append(
			s.CompletedContainers, fl.CompletedContainers...,
		)
	case flagMeshJobContainer:
		s.MeshJobContainers = append(
			s.MeshJobContainers, fl.MeshJobContainers...,
		)
	case flagStampInfoFile:
		cfg.StampInfoFiles = append(
			cfg.StampInfoFiles, flags.StampInfoFiles...,
		)
	case flagTimeout:
		cfg.TimeoutMinutes = flags.TimeoutMinutes
	case flagInterval:
		cfg.IntervalSeconds = flags.IntervalSeconds
	case flagNamespace:
		cfg.Namespace = flags.Namespace
	case flagAdminURL:
		cfg.AdminURL = flags.AdminURL
	case flagAppLabel:
		cfg.AppLabel = flags.AppLabel
	case flagKubeconfig:
		cfg.Kubeconfig = flags.Kubeconfig
	case flagReport:
		cfg.Report = flags.Report
	case flagPushgateway:
		cfg.Pushgateway = flags.Pushgateway
	case flagLogLevel:
		cfg.LogLevel = flags.LogLevel
	case flagLogFormat:
		cfg.LogFormat = flags.LogFormat
	case flagShutdownCompleted:
		cfg.ShutdownAfterCompleted = flags.ShutdownAfterCompleted
	}
}
