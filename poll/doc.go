// Package poll drives a readiness check to a final answer
// under a wall-clock deadline, sleeping a fixed interval or a
// jittered duration between attempts.
package poll
