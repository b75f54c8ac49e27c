package readiness_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/byte4ever/k8s_readiness/poll"
	"github.com/byte4ever/k8s_readiness/readiness"
	"github.com/byte4ever/k8s_readiness/sidecar"
)

const ns = "onap"

func meta(name string, generation int64) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:       name,
		Namespace:  ns,
		Generation: generation,
	}
}

func ownerRef(kind, name string) []metav1.OwnerReference {
	return []metav1.OwnerReference{{
		Kind:       kind,
		Name:       name,
		Controller: ptr.To(true),
	}}
}

func newPod(
	name string,
	owners []metav1.OwnerReference,
	statuses ...corev1.ContainerStatus,
) *corev1.Pod {
	p := &corev1.Pod{ObjectMeta: meta(name, 1)}
	p.OwnerReferences = owners
	p.Status.Phase = corev1.PodRunning
	p.Status.ContainerStatuses = statuses

	return p
}

func withLabels(p *corev1.Pod, kv map[string]string) *corev1.Pod {
	p.Labels = kv

	return p
}

func withPhase(p *corev1.Pod, phase corev1.PodPhase) *corev1.Pod {
	p.Status.Phase = phase

	return p
}

func running(name string) corev1.ContainerStatus {
	return corev1.ContainerStatus{
		Name: name,
		State: corev1.ContainerState{
			Running: &corev1.ContainerStateRunning{},
		},
	}
}

func terminated(name, reason string) corev1.ContainerStatus {
	return corev1.ContainerStatus{
		Name: name,
		State: corev1.ContainerState{
			Terminated: &corev1.ContainerStateTerminated{
				Reason: reason,
			},
		},
	}
}

func newDeployment(name string, replicas, ready int32) *appsv1.Deployment {
	d := &appsv1.Deployment{ObjectMeta: meta(name, 2)}
	d.Spec.Replicas = ptr.To(replicas)
	d.Status = appsv1.DeploymentStatus{
		ObservedGeneration:  2,
		Replicas:            replicas,
		UpdatedReplicas:     replicas,
		ReadyReplicas:       ready,
		UnavailableReplicas: replicas - ready,
	}

	return d
}

func newReplicaSet(name, deployment string) *appsv1.ReplicaSet {
	rs := &appsv1.ReplicaSet{ObjectMeta: meta(name, 1)}
	if deployment != "" {
		rs.OwnerReferences = ownerRef("Deployment", deployment)
	}

	return rs
}

func newStatefulSet(name string, replicas, ready int32) *appsv1.StatefulSet {
	s := &appsv1.StatefulSet{ObjectMeta: meta(name, 3)}
	s.Spec.Replicas = ptr.To(replicas)
	s.Status = appsv1.StatefulSetStatus{
		ObservedGeneration: 3,
		Replicas:           replicas,
		ReadyReplicas:      ready,
	}

	return s
}

func newDaemonSet(name string, desired, ready int32) *appsv1.DaemonSet {
	d := &appsv1.DaemonSet{ObjectMeta: meta(name, 1)}
	d.Status = appsv1.DaemonSetStatus{
		DesiredNumberScheduled: desired,
		NumberReady:            ready,
	}

	return d
}

func newJob(
	name string,
	succeeded int32,
	conditions ...batchv1.JobConditionType,
) *batchv1.Job {
	j := &batchv1.Job{ObjectMeta: meta(name, 1)}
	j.Status.Succeeded = succeeded

	for _, c := range conditions {
		j.Status.Conditions = append(
			j.Status.Conditions,
			batchv1.JobCondition{
				Type:   c,
				Status: corev1.ConditionTrue,
			},
		)
	}

	return j
}

func newService(name string, selector map[string]string) *corev1.Service {
	s := &corev1.Service{ObjectMeta: meta(name, 1)}
	s.Spec.Selector = selector

	return s
}

func newEndpoints(name string, pods ...string) *corev1.Endpoints {
	//nolint:staticcheck // selector-less services publish Endpoints
	ep := &corev1.Endpoints{ObjectMeta: meta(name, 1)}
	if len(pods) == 0 {
		return ep
	}

	//nolint:staticcheck // selector-less services publish Endpoints
	subset := corev1.EndpointSubset{}

	for _, p := range pods {
		subset.Addresses = append(
			subset.Addresses,
			corev1.EndpointAddress{
				IP: "10.0.0.1",
				TargetRef: &corev1.ObjectReference{
					Kind:      "Pod",
					Name:      p,
					Namespace: ns,
				},
			},
		)
	}

	ep.Subsets = append(ep.Subsets, subset)

	return ep
}

func newClient(objs ...runtime.Object) *fake.Clientset {
	return fake.NewClientset(objs...)
}

func newScope(objs ...runtime.Object) readiness.Scope {
	return readiness.Scope{
		Client:    newClient(objs...),
		Namespace: ns,
	}
}

// fakeTime pairs a fake clock with a sleep that records the
// delay, advances the clock and runs an optional hook.
type fakeTime struct {
	clock  *clocktesting.FakeClock
	sleeps []time.Duration
	onTick func(n int)
}

func newFakeTime() *fakeTime {
	return &fakeTime{
		clock: clocktesting.NewFakeClock(
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		),
	}
}

func (ft *fakeTime) sleep(_ context.Context, d time.Duration) error {
	ft.sleeps = append(ft.sleeps, d)
	ft.clock.Step(d)

	if ft.onTick != nil {
		ft.onTick(len(ft.sleeps))
	}

	return nil
}

func (ft *fakeTime) poller(tb testing.TB) *poll.Controller {
	tb.Helper()

	ctl, err := poll.New(
		poll.WithClock(ft.clock),
		poll.WithSleep(ft.sleep),
	)
	require.NoError(tb, err)

	return ctl
}

// countingNotifier records shutdown requests.
type countingNotifier struct {
	calls  int
	result sidecar.Result
}

func (n *countingNotifier) Notify(context.Context) sidecar.Result {
	n.calls++

	return n.result
}

// recordingObserver records engine events.
type recordingObserver struct {
	attempts  map[string]int
	outcomes  []bool
	errs      []error
	shutdowns []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{attempts: make(map[string]int)}
}

func (o *recordingObserver) Attempt(kind string) {
	o.attempts[kind]++
}

func (o *recordingObserver) Outcome(_ string, err error, _ time.Duration) {
	o.outcomes = append(o.outcomes, err == nil)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) Shutdown(result string) {
	o.shutdowns = append(o.shutdowns, result)
}
