package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options configures a KubeClient.
type Options struct {
	APIServer string
	Token     string
	TokenFile string
	CAFile    string
	Insecure  bool
	// DeleteWait bounds how long DeleteNamespace blocks for termination.
	DeleteWait   time.Duration
	PollInterval time.Duration
}

// resourcePaths maps the manifest kinds the variant files use to their API
// collection paths. %s is the namespace. Kinds outside this table are a
// configuration error, kept fixed on purpose: variants are pre-authored,
// not arbitrary.
var resourcePaths = map[string]string{
	"Namespace":      "/api/v1/namespaces",
	"Pod":            "/api/v1/namespaces/%s/pods",
	"Service":        "/api/v1/namespaces/%s/services",
	"ConfigMap":      "/api/v1/namespaces/%s/configmaps",
	"Secret":         "/api/v1/namespaces/%s/secrets",
	"ServiceAccount": "/api/v1/namespaces/%s/serviceaccounts",
	"Deployment":     "/apis/apps/v1/namespaces/%s/deployments",
	"Job":            "/apis/batch/v1/namespaces/%s/jobs",
	"NetworkPolicy":  "/apis/networking.k8s.io/v1/namespaces/%s/networkpolicies",
}

// APIError carries an unexpected control-plane response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("kubernetes api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("kubernetes api error (status=%d): %s", e.StatusCode, body)
}

// KubeClient implements Driver against the Kubernetes REST API using
// bearer-token auth. It deliberately avoids a client library: the driver
// touches a handful of well-known endpoints and nothing else.
type KubeClient struct {
	baseURL      string
	token        string
	http         *http.Client
	deleteWait   time.Duration
	pollInterval time.Duration
}

// NewKubeClient builds a client from Options, reading the token from
// TokenFile when no literal token is given.
func NewKubeClient(opts Options) (*KubeClient, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" && opts.TokenFile != "" {
		data, err := os.ReadFile(opts.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return nil, errors.New("cluster token is required")
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.Insecure {
		tlsCfg.InsecureSkipVerify = true
	} else if opts.CAFile != "" {
		caBytes, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("invalid CA bundle")
		}
		tlsCfg.RootCAs = pool
	}

	deleteWait := opts.DeleteWait
	if deleteWait <= 0 {
		deleteWait = 2 * time.Minute
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &KubeClient{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.APIServer), "/"),
		token:   token,
		http: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		deleteWait:   deleteWait,
		pollInterval: poll,
	}, nil
}

// Ping lists namespaces with limit=1 as a cheap connectivity probe.
func (c *KubeClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/namespaces?limit=1", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *KubeClient) CreateNamespace(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]any{
		"apiVersion": "v1",
		"kind":       "Namespace",
		"metadata": map[string]any{
			"name":   name,
			"labels": map[string]string{"app.kubernetes.io/managed-by": "flbench"},
		},
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/namespaces", body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// DeleteNamespace issues the delete and polls until the namespace is gone,
// replacing the fixed sleeps shell orchestration relies on. A namespace
// already absent is success.
func (c *KubeClient) DeleteNamespace(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/namespaces/"+name, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(c.deleteWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
		getReq, err := c.newRequest(ctx, http.MethodGet, "/api/v1/namespaces/"+name, nil)
		if err != nil {
			return err
		}
		err = c.do(getReq, nil)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("namespace %s still terminating after %v", name, c.deleteWait)
}

// ApplyManifest converts the YAML document to JSON and POSTs it; a 409
// conflict is resolved by replacing the existing object.
func (c *KubeClient) ApplyManifest(ctx context.Context, namespace string, doc []byte) error {
	var obj map[string]any
	if err := yaml.Unmarshal(doc, &obj); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	kind, _ := obj["kind"].(string)
	path, ok := resourcePaths[kind]
	if !ok {
		return fmt.Errorf("unsupported manifest kind %q", kind)
	}
	meta, _ := obj["metadata"].(map[string]any)
	name, _ := meta["name"].(string)
	if name == "" {
		return fmt.Errorf("manifest of kind %s has no metadata.name", kind)
	}
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, namespace)
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	err = c.do(req, nil)
	if errors.Is(err, ErrAlreadyExists) {
		// Replace: delete the stale object and resubmit. The namespace is
		// fresh per run, so a conflict means a leftover from a prior attempt.
		delReq, derr := c.newRequest(ctx, http.MethodDelete, path+"/"+name, nil)
		if derr != nil {
			return derr
		}
		if derr := c.do(delReq, nil); derr != nil && !errors.Is(derr, ErrNotFound) {
			return derr
		}
		req, err = c.newRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return err
		}
		return c.do(req, nil)
	}
	return err
}

type podList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase      string `json:"phase"`
			Conditions []struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			} `json:"conditions"`
		} `json:"status"`
	} `json:"items"`
}

func (c *KubeClient) listPods(ctx context.Context, namespace, selector string) (podList, error) {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods?labelSelector=%s",
		namespace, url.QueryEscape(selector))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return podList{}, err
	}
	var out podList
	if err := c.do(req, &out); err != nil {
		return podList{}, err
	}
	return out, nil
}

func (c *KubeClient) PodNames(ctx context.Context, namespace, selector string) ([]string, error) {
	pods, err := c.listPods(ctx, namespace, selector)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pods.Items))
	for _, p := range pods.Items {
		names = append(names, p.Metadata.Name)
	}
	return names, nil
}

func (c *KubeClient) PodPhase(ctx context.Context, namespace, selector string) (PodPhase, error) {
	pods, err := c.listPods(ctx, namespace, selector)
	if err != nil {
		return PhaseUnknown, err
	}
	if len(pods.Items) == 0 {
		return PhasePending, nil
	}

	allReady, allSucceeded := true, true
	for _, p := range pods.Items {
		switch p.Status.Phase {
		case "Failed", "Unknown":
			return PhaseFailed, nil
		case "Pending":
			return PhasePending, nil
		case "Succeeded":
			allReady = false
		case "Running":
			allSucceeded = false
			ready := false
			for _, cond := range p.Status.Conditions {
				if cond.Type == "Ready" && cond.Status == "True" {
					ready = true
				}
			}
			if !ready {
				allReady = false
			}
		}
	}
	if allSucceeded {
		return PhaseSucceeded, nil
	}
	if allReady {
		return PhaseReady, nil
	}
	return PhaseRunning, nil
}

func (c *KubeClient) StreamLogs(ctx context.Context, namespace, pod string, follow bool, tailLines int) (io.ReadCloser, error) {
	q := url.Values{}
	if follow {
		q.Set("follow", "true")
	}
	if tailLines > 0 {
		q.Set("tailLines", strconv.Itoa(tailLines))
	}
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/log", namespace, pod)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// ReadFile fetches a file through the pod proxy. The workload's results
// sidecar serves its output directory over HTTP on the pod's exposed port,
// which is what makes artifact files reachable without an exec transport.
func (c *KubeClient) ReadFile(ctx context.Context, namespace, pod, path string) ([]byte, error) {
	proxyPath := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/proxy/%s",
		namespace, pod, strings.TrimLeft(path, "/"))
	req, err := c.newRequest(ctx, http.MethodGet, proxyPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *KubeClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *KubeClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	default:
		return statusError(resp.StatusCode, body)
	}
}

func statusError(code int, body []byte) error {
	switch code {
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return &APIError{StatusCode: code, Body: string(body)}
	}
}
