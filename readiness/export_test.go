package readiness

// Exported aliases for testing unexported helpers from the
// readiness_test package.

// PodPageSize exposes podPageSize.
const PodPageSize = podPageSize

// NoSuchKey exposes noSuchKey.
const NoSuchKey = noSuchKey

// DesiredReplicasForTest exposes desiredReplicas.
var DesiredReplicasForTest = desiredReplicas
