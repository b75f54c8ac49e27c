package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultAdminURL is the proxy's local shutdown endpoint.
const DefaultAdminURL = "http://127.0.0.1:15020/quitquitquit"

const defaultProbeTimeout = time.Second

// ErrInvalidAdminURL is returned by NewNotifier when the
// administrative URL is not an absolute http(s) URL.
var ErrInvalidAdminURL = errors.New("invalid admin url")

// Result is the outcome of a shutdown request.
type Result int

const (
	// Absent means nothing listens on the admin port; there is
	// no proxy to stop.
	Absent Result = iota
	// Confirmed means the proxy answered the shutdown request
	// with a 2xx status.
	Confirmed
	// Rejected means the proxy answered with a non-2xx status.
	Rejected
	// Failed means the request could not be completed.
	Failed
)

// String returns the lower-case result name.
func (r Result) String() string {
	switch r {
	case Absent:
		return "absent"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Confirmed reports whether the proxy acknowledged the
// shutdown.
func (r Result) Confirmed() bool {
	return r == Confirmed
}

// Notifier posts a shutdown request to a proxy admin
// endpoint.
type Notifier struct {
	url          string
	probeAddr    string
	probeTimeout time.Duration
	client       *http.Client
	log          *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithProbeAddress overrides the host:port probed before
// posting. It defaults to the admin URL host.
func WithProbeAddress(addr string) Option {
	return func(n *Notifier) {
		n.probeAddr = addr
	}
}

// WithProbeTimeout bounds the TCP reachability probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		n.probeTimeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.client = c
	}
}

// WithLogger sets the logger. A nil logger keeps
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}

// NewNotifier validates adminURL and returns a Notifier.
func NewNotifier(
	adminURL string,
	opts ...Option,
) (*Notifier, error) {
	const errCtx = "creating sidecar notifier"

	u, err := url.Parse(adminURL)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrInvalidAdminURL, err,
		)
	}

	if (u.Scheme != "http" && u.Scheme != "https") ||
		u.Host == "" {
		return nil, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrInvalidAdminURL, adminURL,
		)
	}

	n := &Notifier{
		url:          u.String(),
		probeAddr:    hostPort(u),
		probeTimeout: defaultProbeTimeout,
		client:       cleanhttp.DefaultClient(),
		log:          slog.Default(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// URL returns the administrative endpoint.
func (n *Notifier) URL() string {
	return n.url
}

// Notify probes the admin port and, when something listens,
// posts an empty shutdown request. It never returns an
// error; failures are reported through the Result and the
// log. Calling it again after the proxy exited yields Absent.
func (n *Notifier) Notify(ctx context.Context) Result {
	if !n.reachable(ctx) {
		n.log.Info(
			"no sidecar listening, nothing to shut down",
			"address", n.probeAddr,
		)

		return Absent
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, n.url, http.NoBody,
	)
	if err != nil {
		n.log.Error(
			"building shutdown request",
			"url", n.url,
			"error", err,
		)

		return Failed
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error(
			"shutdown request failed",
			"url", n.url,
			"error", err,
		)

		return Failed
	}

	//nolint:errcheck // drain before close
	io.Copy(io.Discard, resp.Body)
	//nolint:errcheck,gosec // best-effort close
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.log.Warn(
			"sidecar rejected shutdown",
			"url", n.url,
			"status", resp.StatusCode,
		)

		return Rejected
	}

	n.log.Info(
		"sidecar shutdown confirmed",
		"url", n.url,
		"status", resp.StatusCode,
	)

	return Confirmed
}

func (n *Notifier) reachable(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: n.probeTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", n.probeAddr)
	if err != nil {
		n.log.Debug(
			"admin port probe failed",
			"address", n.probeAddr,
			"error", err,
		)

		return false
	}

	//nolint:errcheck,gosec // probe connection only
	conn.Close()

	return true
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}

	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}

	return net.JoinHostPort(u.Hostname(), port)
}
