// Package cluster runs application releases as Kubernetes Pods and talks to
// them over a JSON/HTTP capability protocol.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var podGVR = schema.GroupVersionResource{Version: "v1", Resource: "pods"}

// Manager handles the Pod lifecycle of deployed releases.
type Manager struct {
	client    dynamic.Interface
	namespace string
}

// NewManager creates a new Pod manager.
func NewManager(namespace string, kubeconfig string, inCluster bool) (*Manager, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			loadingRules.ExplicitPath = kubeconfig
		}
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Manager{client: client, namespace: namespace}, nil
}

// NewManagerWithClient creates a Manager with an existing dynamic client (for testing).
func NewManagerWithClient(client dynamic.Interface, namespace string) *Manager {
	return &Manager{client: client, namespace: namespace}
}

// CheckAccess verifies that Pods can be listed in the namespace.
func (m *Manager) CheckAccess(ctx context.Context) error {
	_, err := m.client.Resource(podGVR).Namespace(m.namespace).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("cannot list pods in namespace %s: %w", m.namespace, err)
	}
	return nil
}

// Deploy creates a Pod for the release and waits for it to become ready.
// A Pod that never becomes ready is deleted before returning.
func (m *Manager) Deploy(ctx context.Context, cfg ReleaseConfig) (*ReleaseStatus, error) {
	pod := BuildPod(cfg, m.namespace)
	name := pod.Name

	obj, err := toUnstructured(pod)
	if err != nil {
		return nil, err
	}

	slog.Info("deploying release", "name", name, "version", cfg.Label, "image", cfg.Image)

	created, err := m.client.Resource(podGVR).Namespace(m.namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create pod %s: %w", name, err)
	}

	slog.Info("pod created, waiting for ready", "name", name)

	ready, err := m.waitForReady(ctx, name, cfg.ReadyTimeout)
	if err != nil {
		if terr := m.Teardown(context.WithoutCancel(ctx), name); terr != nil {
			slog.Error("failed to delete pod that never became ready", "name", name, "error", terr)
		}
		return nil, fmt.Errorf("pod %s not ready: %w", name, err)
	}

	return &ReleaseStatus{
		Name:        name,
		Label:       cfg.Label,
		Ready:       true,
		EndpointURL: endpointURL(ready),
		CreatedAt:   created.GetCreationTimestamp().Format(time.RFC3339),
	}, nil
}

// Teardown deletes a Pod with foreground propagation.
func (m *Manager) Teardown(ctx context.Context, name string) error {
	slog.Info("tearing down release", "name", name)

	gracePeriod := int64(10)
	propagation := metav1.DeletePropagationForeground

	err := m.client.Resource(podGVR).Namespace(m.namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &gracePeriod,
		PropagationPolicy:  &propagation,
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete pod %s: %w", name, err)
	}
	return nil
}

// List returns all Pods managed by version-matrix.
func (m *Manager) List(ctx context.Context) ([]ReleaseStatus, error) {
	list, err := m.client.Resource(podGVR).Namespace(m.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app.kubernetes.io/managed-by=" + managedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	statuses := make([]ReleaseStatus, 0, len(list.Items))
	for _, item := range list.Items {
		pod, err := fromUnstructured(&item)
		if err != nil {
			slog.Warn("failed to convert pod", "name", item.GetName(), "error", err)
			continue
		}
		statuses = append(statuses, statusFromPod(pod))
	}
	return statuses, nil
}

// Get returns the status of one Pod.
func (m *Manager) Get(ctx context.Context, name string) (*ReleaseStatus, error) {
	pod, err := m.getPod(ctx, name)
	if err != nil {
		return nil, err
	}
	status := statusFromPod(pod)
	return &status, nil
}

func (m *Manager) getPod(ctx context.Context, name string) (*corev1.Pod, error) {
	item, err := m.client.Resource(podGVR).Namespace(m.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s: %w", name, err)
	}
	return fromUnstructured(item)
}

func statusFromPod(pod *corev1.Pod) ReleaseStatus {
	status := ReleaseStatus{
		Name:      pod.Name,
		Label:     pod.Labels[labelKey],
		CreatedAt: pod.CreationTimestamp.Format(time.RFC3339),
	}
	if isReady(pod) {
		status.Ready = true
		status.EndpointURL = endpointURL(pod)
	} else {
		status.Message = string(pod.Status.Phase)
		if status.Message == "" {
			status.Message = "pending"
		}
	}
	return status
}

func (m *Manager) waitForReady(ctx context.Context, name string, timeout time.Duration) (*corev1.Pod, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The Pod may already be ready before the watch starts.
	pod, err := m.getPod(ctx, name)
	if err != nil {
		return nil, err
	}
	if done, err := readiness(pod); done {
		return pod, err
	}

	watcher, err := m.client.Resource(podGVR).Namespace(m.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: "metadata.name=" + name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch pod: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for pod %s to become ready", name)
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return nil, fmt.Errorf("watch channel closed for pod %s", name)
			}
			if event.Type != watch.Modified && event.Type != watch.Added {
				continue
			}
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			pod, err := fromUnstructured(obj)
			if err != nil {
				slog.Warn("failed to convert watch event", "error", err)
				continue
			}
			if done, err := readiness(pod); done {
				return pod, err
			}
			slog.Debug("pod not ready yet", "name", name, "phase", pod.Status.Phase)
		}
	}
}

// readiness reports whether waiting is over, with an error if the Pod can
// never become ready.
func readiness(pod *corev1.Pod) (bool, error) {
	switch {
	case isReady(pod):
		slog.Info("pod ready", "name", pod.Name, "ip", pod.Status.PodIP)
		return true, nil
	case hasTerminated(pod):
		return true, fmt.Errorf("pod %s terminated in phase %s: %s", pod.Name, pod.Status.Phase, pod.Status.Message)
	default:
		return false, nil
	}
}
