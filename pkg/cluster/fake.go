package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Fake is an in-memory Driver for tests. It records every mutation, lets
// tests script pod phases and log content, and can fail any single
// operation by name.
type Fake struct {
	mu sync.Mutex

	namespaces map[string]bool
	applied    map[string][][]byte // namespace -> docs in apply order
	phases     map[string]PodPhase // selector -> phase
	pods       map[string][]string // selector -> pod names
	logs       map[string]string   // pod -> log content
	files      map[string][]byte   // pod + ":" + path -> content

	failures map[string]error // operation name -> injected error
	Calls    []string
}

// NewFake returns an empty fake driver.
func NewFake() *Fake {
	return &Fake{
		namespaces: make(map[string]bool),
		applied:    make(map[string][][]byte),
		phases:     make(map[string]PodPhase),
		pods:       make(map[string][]string),
		logs:       make(map[string]string),
		files:      make(map[string][]byte),
		failures:   make(map[string]error),
	}
}

// FailOn makes the named operation ("CreateNamespace", "ApplyManifest",
// "PodPhase", ...) return err on every call until cleared.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// ClearFailures removes all injected errors.
func (f *Fake) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

// SetPhase scripts the aggregate phase reported for a selector.
func (f *Fake) SetPhase(selector string, phase PodPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases[selector] = phase
}

// SetPods scripts the pod names returned for a selector.
func (f *Fake) SetPods(selector string, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pods[selector] = names
}

// SetLogs scripts a pod's log snapshot.
func (f *Fake) SetLogs(pod, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[pod] = content
}

// SetFile scripts a file served by the pod's results sidecar.
func (f *Fake) SetFile(pod, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[pod+":"+path] = content
}

// Namespaces returns the currently existing namespaces.
func (f *Fake) Namespaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for ns, alive := range f.namespaces {
		if alive {
			out = append(out, ns)
		}
	}
	return out
}

// Applied returns the docs applied into a namespace, in order.
func (f *Fake) Applied(namespace string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[namespace]
}

func (f *Fake) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	return f.failures[op]
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.record("Ping")
}

func (f *Fake) CreateNamespace(ctx context.Context, name string) error {
	if err := f.record("CreateNamespace"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.namespaces[name] {
		return ErrAlreadyExists
	}
	f.namespaces[name] = true
	return nil
}

func (f *Fake) DeleteNamespace(ctx context.Context, name string) error {
	if err := f.record("DeleteNamespace"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, name)
	delete(f.applied, name)
	return nil
}

func (f *Fake) ApplyManifest(ctx context.Context, namespace string, doc []byte) error {
	if err := f.record("ApplyManifest"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.namespaces[namespace] {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, namespace)
	}
	f.applied[namespace] = append(f.applied[namespace], doc)
	return nil
}

func (f *Fake) PodNames(ctx context.Context, namespace, selector string) ([]string, error) {
	if err := f.record("PodNames"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pods[selector], nil
}

func (f *Fake) PodPhase(ctx context.Context, namespace, selector string) (PodPhase, error) {
	if err := f.record("PodPhase"); err != nil {
		return PhaseUnknown, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if phase, ok := f.phases[selector]; ok {
		return phase, nil
	}
	return PhasePending, nil
}

func (f *Fake) StreamLogs(ctx context.Context, namespace, pod string, follow bool, tailLines int) (io.ReadCloser, error) {
	if err := f.record("StreamLogs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.logs[pod]
	if !ok {
		return nil, fmt.Errorf("%w: pod %s", ErrNotFound, pod)
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

func (f *Fake) ReadFile(ctx context.Context, namespace, pod, path string) ([]byte, error) {
	if err := f.record("ReadFile"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[pod+":"+path]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, pod, path)
	}
	return content, nil
}
