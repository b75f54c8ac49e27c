package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ownerCheck fetches a controller's status and evaluates its
// predicate.
type ownerCheck func(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict

// ownerChecks maps each supported owner kind to its check.
// New kinds are added here.
//
//nolint:gochecknoglobals // dispatch table
var ownerChecks = map[OwnerKind]ownerCheck{
	OwnerStatefulSet: statefulSetVerdict,
	OwnerDeployment:  deploymentVerdict,
	OwnerDaemonSet:   daemonSetVerdict,
	OwnerJob:         jobVerdict,
}

// queryCheck evaluates one query value.
type queryCheck func(
	ctx context.Context,
	sc Scope,
	value string,
) Verdict

//nolint:gochecknoglobals // dispatch table
var queryChecks = map[Kind]queryCheck{
	KindService:            serviceVerdict,
	KindContainer:          containerVerdict,
	KindPod:                podVerdict,
	KindApp:                appVerdict,
	KindJob:                jobVerdict,
	KindCompletedContainer: completedContainerVerdict,
	KindMeshJobContainer:   meshJobContainerVerdict,
}

// Checker evaluates a query once against fresh cluster
// state. Nothing is cached between calls.
type Checker struct {
	client   kubernetes.Interface
	appLabel string
	log      *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithAppLabel sets the pod label matched by app queries.
func WithAppLabel(key string) CheckerOption {
	return func(c *Checker) {
		if key != "" {
			c.appLabel = key
		}
	}
}

// WithCheckerLogger sets the logger. A nil logger keeps
// slog.Default().
func WithCheckerLogger(l *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

// NewChecker returns a Checker reading through client.
func NewChecker(
	client kubernetes.Interface,
	opts ...CheckerOption,
) *Checker {
	c := &Checker{
		client:   client,
		appLabel: DefaultAppLabel,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Checker) scope(q Query) Scope {
	return Scope{
		Client:    c.client,
		Namespace: q.Namespace,
		AppLabel:  c.appLabel,
		Logger: c.log.With(
			"kind", q.Kind.String(),
			"query", q.Value,
			"namespace", q.Namespace,
		),
	}
}

// Check evaluates q. Lookup failures and missing matches
// yield a not-ready verdict, never an error.
func (c *Checker) Check(ctx context.Context, q Query) Verdict {
	check, ok := queryChecks[q.Kind]
	if !ok {
		return notReadyf("unknown query kind %q", q.Kind)
	}

	return check(ctx, c.scope(q), q.Value)
}

// OwnerVerdict evaluates the readiness of the controller
// owning pod.
func OwnerVerdict(
	ctx context.Context,
	sc Scope,
	pod *corev1.Pod,
) Verdict {
	owner, err := ResolveOwner(ctx, sc, pod)
	if err != nil {
		return lookupFailed(sc, "pod", pod.Name, err)
	}

	check, ok := ownerChecks[owner.Kind]
	if !ok {
		sc.logger().Warn(
			"unsupported owner",
			"pod", pod.Name,
			"owner", owner.Name,
		)

		return notReadyf(
			"pod %s: unsupported owner %s", pod.Name, owner,
		)
	}

	return check(ctx, sc, owner.Name)
}

// ownersVerdict requires every distinct owner of pods to be
// ready.
func ownersVerdict(
	ctx context.Context,
	sc Scope,
	pods []corev1.Pod,
) Verdict {
	seen := make(map[Owner]bool)

	var names []string

	for i := range pods {
		owner, err := ResolveOwner(ctx, sc, &pods[i])
		if err != nil {
			return lookupFailed(sc, "pod", pods[i].Name, err)
		}

		if seen[owner] {
			continue
		}

		seen[owner] = true

		check, ok := ownerChecks[owner.Kind]
		if !ok {
			return notReadyf(
				"pod %s: unsupported owner %s",
				pods[i].Name, owner,
			)
		}

		if v := check(ctx, sc, owner.Name); !v.Ready {
			return v
		}

		names = append(names, owner.String())
	}

	return readyf("owners ready: %s", strings.Join(names, ", "))
}

func serviceVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	pod, err := ServicePod(ctx, sc, name)
	if err != nil {
		return lookupFailed(sc, "service", name, err)
	}

	sc.logger().Info(
		"found pod selected by service",
		"service", name,
		"pod", pod.Name,
	)

	return OwnerVerdict(ctx, sc, pod)
}

func containerVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	pods, err := PodsWithContainer(ctx, sc, name)
	if err != nil {
		return lookupFailed(sc, "container", name, err)
	}

	if len(pods) == 0 {
		return notReadyf("no pod runs container %s", name)
	}

	return OwnerVerdict(ctx, sc, &pods[0])
}

func podVerdict(
	ctx context.Context,
	sc Scope,
	prefix string,
) Verdict {
	pods, err := PodsWithPrefix(ctx, sc, prefix)
	if err != nil {
		return lookupFailed(sc, "pod", prefix, err)
	}

	if len(pods) == 0 {
		return notReadyf("no pod named %s*", prefix)
	}

	return ownersVerdict(ctx, sc, pods)
}

func appVerdict(
	ctx context.Context,
	sc Scope,
	app string,
) Verdict {
	pods, err := PodsWithApp(ctx, sc, app)
	if err != nil {
		return lookupFailed(sc, "app", app, err)
	}

	if len(pods) == 0 {
		return notReadyf(
			"no pod labeled %s=%s", sc.appLabel(), app,
		)
	}

	return ownersVerdict(ctx, sc, pods)
}

func completedContainerVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	pods, err := PodsWithContainer(ctx, sc, name)
	if err != nil {
		return lookupFailed(sc, "container", name, err)
	}

	for i := range pods {
		st, _ := ContainerStatus(&pods[i], name)
		if ContainerCompleted(st) {
			sc.logger().Info(
				"container is complete",
				"container", name,
				"pod", pods[i].Name,
			)

			return readyf(
				"container %s completed in pod %s",
				name, pods[i].Name,
			)
		}
	}

	sc.logger().Info(
		"container is NOT complete",
		"container", name,
		"pods", len(pods),
	)

	return notReadyf("container %s has not completed", name)
}

func meshJobContainerVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	pods, err := PodsWithContainer(ctx, sc, name)
	if err != nil {
		return lookupFailed(sc, "container", name, err)
	}

	for i := range pods {
		st, _ := ContainerStatus(&pods[i], name)
		if MeshJobContainerDone(&pods[i], st) {
			sc.logger().Info(
				"job container terminated, sidecar still running",
				"container", name,
				"pod", pods[i].Name,
				"reason", st.State.Terminated.Reason,
			)

			return readyf(
				"container %s terminated (%s) in running pod %s",
				name, st.State.Terminated.Reason, pods[i].Name,
			)
		}
	}

	sc.logger().Info(
		"job container is NOT done",
		"container", name,
		"pods", len(pods),
	)

	return notReadyf(
		"container %s not terminated in a running pod", name,
	)
}

func statefulSetVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	sts, err := sc.Client.AppsV1().
		StatefulSets(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return lookupFailed(sc, "statefulset", name, err)
	}

	want := desiredReplicas(sts.Spec.Replicas)

	if !StatefulSetReady(sts) {
		sc.logger().Info(
			"statefulset is NOT ready",
			"statefulset", name,
			"ready", sts.Status.ReadyReplicas,
			"desired", want,
		)

		return notReadyf(
			"statefulset %s: %d/%d ready, generation %d/%d",
			name, sts.Status.ReadyReplicas, want,
			sts.Status.ObservedGeneration, sts.Generation,
		)
	}

	sc.logger().Info("statefulset is ready", "statefulset", name)

	return readyf(
		"statefulset %s: %d/%d ready",
		name, sts.Status.ReadyReplicas, want,
	)
}

func deploymentVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	dpl, err := sc.Client.AppsV1().
		Deployments(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return lookupFailed(sc, "deployment", name, err)
	}

	want := desiredReplicas(dpl.Spec.Replicas)

	if !DeploymentReady(dpl) {
		sc.logger().Info(
			"deployment is NOT ready",
			"deployment", name,
			"ready", dpl.Status.ReadyReplicas,
			"unavailable", dpl.Status.UnavailableReplicas,
			"desired", want,
		)

		return notReadyf(
			"deployment %s: %d/%d ready, %d unavailable",
			name, dpl.Status.ReadyReplicas, want,
			dpl.Status.UnavailableReplicas,
		)
	}

	sc.logger().Info("deployment is ready", "deployment", name)

	return readyf(
		"deployment %s: %d/%d ready",
		name, dpl.Status.ReadyReplicas, want,
	)
}

func daemonSetVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	ds, err := sc.Client.AppsV1().
		DaemonSets(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return lookupFailed(sc, "daemonset", name, err)
	}

	ready := DaemonSetReady(ds)

	sc.logger().Info(
		"daemonset nodes ready",
		"daemonset", name,
		"ready", ds.Status.NumberReady,
		"desired", ds.Status.DesiredNumberScheduled,
		"complete", ready,
	)

	reason := fmt.Sprintf(
		"daemonset %s: %d/%d nodes ready",
		name, ds.Status.NumberReady,
		ds.Status.DesiredNumberScheduled,
	)

	return Verdict{Ready: ready, Reason: reason}
}

func jobVerdict(
	ctx context.Context,
	sc Scope,
	name string,
) Verdict {
	job, err := sc.Client.BatchV1().
		Jobs(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return lookupFailed(sc, "job", name, err)
	}

	if !JobComplete(job) {
		sc.logger().Info(
			"job is NOT complete",
			"job", name,
			"succeeded", job.Status.Succeeded,
		)

		return notReadyf(
			"job %s: %d succeeded, not complete",
			name, job.Status.Succeeded,
		)
	}

	sc.logger().Info("job is complete", "job", name)

	return readyf("job %s complete", name)
}
