package readiness

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrNoOwner is returned for objects without owner
// references.
var ErrNoOwner = errors.New("no owner reference")

// OwnerKind is the controller kind readiness is judged on.
type OwnerKind string

// Owner kinds with a readiness predicate, plus Unknown for
// everything else.
const (
	OwnerStatefulSet OwnerKind = "StatefulSet"
	OwnerDeployment  OwnerKind = "Deployment"
	OwnerDaemonSet   OwnerKind = "DaemonSet"
	OwnerJob         OwnerKind = "Job"
	OwnerUnknown     OwnerKind = "Unknown"
)

const kindReplicaSet = "ReplicaSet"

// Owner identifies the controller of a pod.
type Owner struct {
	Kind OwnerKind
	Name string
}

// String returns "Kind/name".
func (o Owner) String() string {
	return string(o.Kind) + "/" + o.Name
}

func ownerKindOf(kind string) OwnerKind {
	switch OwnerKind(kind) {
	case OwnerStatefulSet, OwnerDeployment,
		OwnerDaemonSet, OwnerJob:
		return OwnerKind(kind)
	default:
		return OwnerUnknown
	}
}

func firstOwner(
	meta metav1.Object,
) (metav1.OwnerReference, error) {
	refs := meta.GetOwnerReferences()
	if len(refs) == 0 {
		return metav1.OwnerReference{}, fmt.Errorf(
			"%s: %w", meta.GetName(), ErrNoOwner,
		)
	}

	return refs[0], nil
}

// ResolveOwner returns the controller owning pod, judged by
// its first owner reference. Pods never reference their
// deployment, so a ReplicaSet owner is followed one level up
// through the replica set's own first owner reference.
func ResolveOwner(
	ctx context.Context,
	sc Scope,
	pod *corev1.Pod,
) (Owner, error) {
	const errCtx = "resolving owner"

	ref, err := firstOwner(pod)
	if err != nil {
		return Owner{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if ref.Kind != kindReplicaSet {
		return Owner{
			Kind: ownerKindOf(ref.Kind),
			Name: ref.Name,
		}, nil
	}

	rs, err := sc.Client.AppsV1().
		ReplicaSets(sc.Namespace).
		Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return Owner{}, fmt.Errorf(
			"%s: replicaset %s: %w", errCtx, ref.Name, err,
		)
	}

	rsRef, err := firstOwner(rs)
	if err != nil {
		return Owner{}, fmt.Errorf(
			"%s: replicaset %w", errCtx, err,
		)
	}

	return Owner{
		Kind: ownerKindOf(rsRef.Kind),
		Name: rsRef.Name,
	}, nil
}
