package readiness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
)

// ErrNoMatch is returned when a service resolves to no pod.
var ErrNoMatch = errors.New("no matching pod")

const podPageSize = 300

// noSuchKey stands in for a missing label; it is not a valid
// label value so it never equals a query value.
const noSuchKey = "\x00NoSuchKey"

// listPods lists every pod in the scope namespace, following
// continue tokens page by page.
func listPods(
	ctx context.Context,
	sc Scope,
	selector string,
) ([]corev1.Pod, error) {
	const errCtx = "listing pods"

	var (
		result []corev1.Pod
		token  string
	)

	for {
		page, err := sc.Client.CoreV1().
			Pods(sc.Namespace).
			List(ctx, metav1.ListOptions{
				LabelSelector: selector,
				Limit:         podPageSize,
				Continue:      token,
			})
		if err != nil {
			return nil, fmt.Errorf(
				"%s in %q: %w", errCtx, sc.Namespace, err,
			)
		}

		result = append(result, page.Items...)

		token = page.Continue
		if token == "" {
			return result, nil
		}
	}
}

func filterPods(
	pods []corev1.Pod,
	keep func(*corev1.Pod) bool,
) []corev1.Pod {
	var out []corev1.Pod

	for i := range pods {
		if keep(&pods[i]) {
			out = append(out, pods[i])
		}
	}

	return out
}

// ContainerStatus returns the status of the named container.
func ContainerStatus(
	pod *corev1.Pod,
	name string,
) (corev1.ContainerStatus, bool) {
	for _, st := range pod.Status.ContainerStatuses {
		if st.Name == name {
			return st, true
		}
	}

	return corev1.ContainerStatus{}, false
}

// PodsWithContainer returns the pods reporting a status for
// a container with the given name.
func PodsWithContainer(
	ctx context.Context,
	sc Scope,
	name string,
) ([]corev1.Pod, error) {
	pods, err := listPods(ctx, sc, "")
	if err != nil {
		return nil, err
	}

	return filterPods(pods, func(p *corev1.Pod) bool {
		_, ok := ContainerStatus(p, name)

		return ok
	}), nil
}

// PodsWithPrefix returns the pods whose name starts with
// prefix. Generated suffixes make exact names unknowable.
func PodsWithPrefix(
	ctx context.Context,
	sc Scope,
	prefix string,
) ([]corev1.Pod, error) {
	pods, err := listPods(ctx, sc, "")
	if err != nil {
		return nil, err
	}

	return filterPods(pods, func(p *corev1.Pod) bool {
		return strings.HasPrefix(p.Name, prefix)
	}), nil
}

// PodsWithApp returns the pods whose application label
// equals app.
func PodsWithApp(
	ctx context.Context,
	sc Scope,
	app string,
) ([]corev1.Pod, error) {
	pods, err := listPods(ctx, sc, "")
	if err != nil {
		return nil, err
	}

	key := sc.appLabel()

	return filterPods(pods, func(p *corev1.Pod) bool {
		return labelOrSentinel(p, key) == app
	}), nil
}

func labelOrSentinel(p *corev1.Pod, key string) string {
	if v, ok := p.Labels[key]; ok {
		return v
	}

	return noSuchKey
}

// ServicePod returns one pod backing the named service. A
// service with a selector is resolved through a label
// selector; otherwise the first address of the first subset
// of its endpoints is used. Further matches are ignored.
func ServicePod(
	ctx context.Context,
	sc Scope,
	name string,
) (*corev1.Pod, error) {
	const errCtx = "resolving service pod"

	svc, err := sc.Client.CoreV1().
		Services(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, name, err,
		)
	}

	if len(svc.Spec.Selector) > 0 {
		selector := labels.Set(svc.Spec.Selector).String()

		pods, err := listPods(ctx, sc, selector)
		if err != nil {
			return nil, fmt.Errorf(
				"%s %s: %w", errCtx, name, err,
			)
		}

		if len(pods) == 0 {
			return nil, fmt.Errorf(
				"%s %s: selector %q: %w",
				errCtx, name, selector, ErrNoMatch,
			)
		}

		sc.logger().Debug(
			"service selects pod",
			"service", name,
			"pod", pods[0].Name,
			"matches", len(pods),
		)

		return &pods[0], nil
	}

	sc.logger().Debug(
		"service has no selector, checking endpoints",
		"service", name,
	)

	return endpointPod(ctx, sc, name)
}

func endpointPod(
	ctx context.Context,
	sc Scope,
	name string,
) (*corev1.Pod, error) {
	const errCtx = "resolving endpoint pod"

	//nolint:staticcheck // selector-less services only publish Endpoints by name
	ep, err := sc.Client.CoreV1().
		Endpoints(sc.Namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, name, err,
		)
	}

	if len(ep.Subsets) == 0 ||
		len(ep.Subsets[0].Addresses) == 0 {
		return nil, fmt.Errorf(
			"%s %s: no addresses: %w",
			errCtx, name, ErrNoMatch,
		)
	}

	ref := ep.Subsets[0].Addresses[0].TargetRef
	if ref == nil || ref.Kind != "Pod" {
		return nil, fmt.Errorf(
			"%s %s: first address is not a pod: %w",
			errCtx, name, ErrNoMatch,
		)
	}

	pod, err := sc.Client.CoreV1().
		Pods(sc.Namespace).
		Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, name, err,
		)
	}

	return pod, nil
}
