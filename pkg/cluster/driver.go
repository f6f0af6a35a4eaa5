package cluster

import (
	"context"
	"errors"
	"io"
)

// PodPhase is the aggregated status of the pods matched by a selector.
type PodPhase string

const (
	PhasePending   PodPhase = "Pending"
	PhaseRunning   PodPhase = "Running"
	PhaseReady     PodPhase = "Ready"
	PhaseFailed    PodPhase = "Failed"
	PhaseSucceeded PodPhase = "Succeeded"
	PhaseUnknown   PodPhase = "Unknown"
)

// Sentinel errors returned by Driver implementations.
var (
	ErrNotFound      = errors.New("cluster resource not found")
	ErrAlreadyExists = errors.New("cluster resource already exists")
	ErrUnauthorized  = errors.New("cluster request unauthorized")
	ErrForbidden     = errors.New("cluster request forbidden")
	// ErrUnreachable wraps transport-level failures so callers can
	// distinguish a down control plane from a rejected request.
	ErrUnreachable = errors.New("cluster control plane unreachable")
)

// Driver is the thin boundary over the container-orchestration control
// plane. The run lifecycle controller is written against this interface;
// KubeClient implements it for Kubernetes and Fake implements it for tests.
type Driver interface {
	// Ping probes control-plane connectivity with a cheap read.
	Ping(ctx context.Context) error

	// CreateNamespace creates the run's isolation boundary.
	CreateNamespace(ctx context.Context, name string) error

	// DeleteNamespace deletes the namespace and blocks until it is fully
	// gone or the implementation's wait bound elapses. Deleting a
	// namespace that does not exist is not an error.
	DeleteNamespace(ctx context.Context, name string) error

	// ApplyManifest submits one manifest document (YAML) into the
	// namespace, replacing an existing object of the same kind and name.
	ApplyManifest(ctx context.Context, namespace string, doc []byte) error

	// PodNames lists pods matching the label selector.
	PodNames(ctx context.Context, namespace, selector string) ([]string, error)

	// PodPhase reports the aggregated phase of pods matching the selector:
	// any Failed pod dominates, then Pending, then Running vs Ready, and
	// all-Succeeded reports Succeeded. No matching pods is Pending.
	PodPhase(ctx context.Context, namespace, selector string) (PodPhase, error)

	// StreamLogs opens the pod's log stream. With follow the stream stays
	// open until the pod terminates or ctx is cancelled; without it the
	// stream is a finite snapshot of the last tailLines lines (0 = all).
	StreamLogs(ctx context.Context, namespace, pod string, follow bool, tailLines int) (io.ReadCloser, error)

	// ReadFile retrieves a file the workload exposes through its results
	// sidecar (served over the pod proxy in the Kubernetes implementation).
	ReadFile(ctx context.Context, namespace, pod, path string) ([]byte, error)
}
