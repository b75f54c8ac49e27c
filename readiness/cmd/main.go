// Command readiness blocks until the named Kubernetes
// workloads are ready, then exits 0. It exits 1 when a
// workload misses its deadline or the run fails and 2 on
// invalid usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"k8s.io/klog/v2"

	"github.com/byte4ever/k8s_readiness/config"
	"github.com/byte4ever/k8s_readiness/metrics"
	"github.com/byte4ever/k8s_readiness/poll"
	"github.com/byte4ever/k8s_readiness/readiness"
	"github.com/byte4ever/k8s_readiness/report"
	"github.com/byte4ever/k8s_readiness/sidecar"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2

	pushTimeout = 10 * time.Second
)

// errHelp reports that usage was printed on request.
var errHelp = errors.New("help requested")

func parseConfig(
	args []string,
	stderr io.Writer,
) (config.Config, error) {
	const errCtx = "parse config"

	fs := pflag.NewFlagSet("readiness", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	flags := config.Bind(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return config.Config{}, errHelp
		}

		return config.Config{}, fmt.Errorf(
			"%s: %w: %w", errCtx, config.ErrUsage, err,
		)
	}

	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf(
			"%s: %w: unexpected arguments %q",
			errCtx, config.ErrUsage, fs.Args(),
		)
	}

	cfg, err := config.Resolve(fs, flags)
	if err != nil {
		return config.Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}

	if cfg.LogFormat == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}

	return slog.New(slog.NewTextHandler(out, opts))
}

// kubeconfigPath picks the flag value, then $KUBECONFIG,
// then nothing when running in a cluster so the in-cluster
// config applies, else ~/.kube/config.
func kubeconfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}

	if _, ok := os.LookupEnv("KUBERNETES_SERVICE_HOST"); ok {
		return ""
	}

	return filepath.Join(homedir.HomeDir(), ".kube", "config")
}

func newClient(kubeconfig string) (kubernetes.Interface, error) {
	const errCtx = "creating kubernetes client"

	restConfig, err := clientcmd.BuildConfigFromFlags(
		"", kubeconfigPath(kubeconfig),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: building kubeconfig: %w", errCtx, err,
		)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return clientset, nil
}

//nolint:funlen // wiring
func run(args []string) error {
	const errCtx = "readiness"

	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		return err
	}

	logger := newLogger(&cfg, os.Stdout)
	slog.SetDefault(logger)
	klog.SetSlogLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigCh)
		cancel()
	}()

	// Cancel context on signal.
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("interrupted", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	queries, err := cfg.Queries(os.Environ())
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	client, err := newClient(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	poller, err := poll.New(
		poll.WithInterval(cfg.Interval()),
		poll.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", errCtx, config.ErrUsage, err)
	}

	notifier, err := sidecar.NewNotifier(
		cfg.AdminURL, sidecar.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", errCtx, config.ErrUsage, err)
	}

	logger.Debug(
		"sidecar shutdown endpoint",
		"url", notifier.URL(),
		"kinds", cfg.NotifyKinds(),
	)

	recorder := metrics.NewRecorder()

	engine := readiness.NewEngine(
		readiness.NewChecker(
			client,
			readiness.WithAppLabel(cfg.AppLabel),
			readiness.WithCheckerLogger(logger),
		),
		poller,
		readiness.WithNotifier(notifier),
		readiness.WithNotifyKinds(cfg.NotifyKinds()...),
		readiness.WithObserver(recorder),
		readiness.WithEngineLogger(logger),
	)

	outcomes, runErr := engine.Run(ctx, queries, cfg.Timeout())

	if cfg.Report != "" {
		if err := report.New(outcomes, runErr).WriteFile(
			cfg.Report,
		); err != nil {
			logger.Error("report not written", "error", err)
		}
	}

	if cfg.Pushgateway != "" {
		pushCtx, pushCancel := context.WithTimeout(
			context.Background(), pushTimeout,
		)

		if err := recorder.Push(
			pushCtx, cfg.Pushgateway, cfg.Namespace,
		); err != nil {
			logger.Error("metrics not pushed", "error", err)
		}

		pushCancel()
	}

	if runErr != nil {
		return fmt.Errorf("%s: %w", errCtx, runErr)
	}

	logger.Info("all workloads ready", "queries", len(outcomes))

	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, errHelp):
		return exitOK
	case errors.Is(err, config.ErrUsage),
		errors.Is(err, readiness.ErrInvalidQuery):
		return exitUsage
	default:
		return exitFail
	}
}

func main() {
	err := run(os.Args[1:])
	if err != nil && !errors.Is(err, errHelp) {
		slog.Error(err.Error())
	}

	os.Exit(exitCode(err))
}
