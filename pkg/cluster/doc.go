/*
Package cluster is the thin boundary over the container-orchestration
control plane.

The Driver interface covers exactly the operations the run lifecycle
needs (namespace create/delete, manifest apply, pod status, log
streaming, and sidecar file retrieval) and nothing else. Two
implementations exist:

  - KubeClient talks to the Kubernetes REST API directly with
    bearer-token auth. It avoids a client SDK on purpose: the driver
    touches a handful of stable endpoints, and the manifest kinds it can
    apply are a fixed table matching the pre-authored variant files.
  - Fake is an in-memory driver for tests, with scripted pod phases and
    per-operation failure injection.

Error classification matters more than error detail here: ErrUnreachable
wraps every transport-level failure so the scheduler can tell a down
control plane (pause and back off globally) apart from a rejected request
(fail the current run). ErrNotFound / ErrAlreadyExists / ErrUnauthorized /
ErrForbidden map the usual status codes; anything else surfaces as an
*APIError with the response body attached.

DeleteNamespace blocks until the namespace has actually terminated (or a
bound elapses). Namespace deletion in Kubernetes is asynchronous and a
new run reusing the same deterministic name must not race the old one's
teardown.

ReadFile goes through the pod proxy subresource: the workload's results
sidecar serves its output directory over HTTP, which keeps artifact
retrieval on the plain REST surface instead of the exec/SPDY transport.
*/
package cluster
