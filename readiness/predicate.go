package readiness

import (
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// ReasonCompleted is the termination reason of a container
// that exited zero.
const ReasonCompleted = "Completed"

// desiredReplicas applies the API default of one replica.
func desiredReplicas(replicas *int32) int32 {
	if replicas == nil {
		return 1
	}

	return *replicas
}

// StatefulSetReady reports whether current, desired and
// ready replica counts agree and the status reflects the
// latest spec generation.
func StatefulSetReady(sts *appsv1.StatefulSet) bool {
	want := desiredReplicas(sts.Spec.Replicas)
	st := sts.Status

	return st.Replicas == want &&
		st.ReadyReplicas == want &&
		st.ObservedGeneration == sts.Generation
}

// DeploymentReady reports whether a deployment has no
// unavailable replicas, every replica is updated (or the
// updated count is unset), current and ready counts match
// the desired count and the status is not stale.
func DeploymentReady(dpl *appsv1.Deployment) bool {
	want := desiredReplicas(dpl.Spec.Replicas)
	st := dpl.Status

	return st.UnavailableReplicas == 0 &&
		(st.UpdatedReplicas == 0 ||
			st.UpdatedReplicas == want) &&
		st.Replicas == want &&
		st.ReadyReplicas == want &&
		st.ObservedGeneration == dpl.Generation
}

// DaemonSetReady reports whether every scheduled daemon pod
// is ready.
func DaemonSetReady(ds *appsv1.DaemonSet) bool {
	return ds.Status.DesiredNumberScheduled ==
		ds.Status.NumberReady
}

// JobComplete reports whether a job succeeded exactly once
// and its first condition is Complete.
func JobComplete(job *batchv1.Job) bool {
	st := job.Status

	return st.Succeeded == 1 &&
		len(st.Conditions) > 0 &&
		st.Conditions[0].Type == batchv1.JobComplete
}

// ContainerCompleted reports whether the container
// terminated with reason Completed.
func ContainerCompleted(st corev1.ContainerStatus) bool {
	term := st.State.Terminated

	return term != nil && term.Reason == ReasonCompleted
}

// MeshJobContainerDone reports whether the container has
// terminated, for any reason, while its pod is still
// running; the proxy sidecar keeps the pod alive.
func MeshJobContainerDone(
	pod *corev1.Pod,
	st corev1.ContainerStatus,
) bool {
	return pod.Status.Phase == corev1.PodRunning &&
		st.State.Terminated != nil
}
