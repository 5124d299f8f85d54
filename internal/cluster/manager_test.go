package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"
)

const testNamespace = "test-namespace"

func newFakeClient(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{podGVR: "PodList"},
		objects...,
	)
}

func makePod(t *testing.T, name string, phase corev1.PodPhase, ready bool) *unstructured.Unstructured {
	t.Helper()
	pod := BuildPod(ReleaseConfig{Label: "2.0", Image: "img"}, testNamespace)
	pod.Name = name
	pod.CreationTimestamp = metav1.NewTime(time.Now())
	pod.Status.Phase = phase
	pod.Status.PodIP = "10.0.0.7"
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	pod.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: status}}

	obj, err := toUnstructured(pod)
	require.NoError(t, err)
	return obj
}

// reactToGet answers every pod get with a pod in the given state.
func reactToGet(t *testing.T, client *dynamicfake.FakeDynamicClient, phase corev1.PodPhase, ready bool) {
	client.PrependReactor("get", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		name := action.(k8stesting.GetAction).GetName()
		return true, makePod(t, name, phase, ready), nil
	})
}

func deletedPods(client *dynamicfake.FakeDynamicClient) []string {
	var names []string
	for _, a := range client.Actions() {
		if da, ok := a.(k8stesting.DeleteAction); ok {
			names = append(names, da.GetName())
		}
	}
	return names
}

func TestManagerDeployReady(t *testing.T) {
	client := newFakeClient()
	reactToGet(t, client, corev1.PodRunning, true)
	m := NewManagerWithClient(client, testNamespace)

	status, err := m.Deploy(context.Background(), DefaultReleaseConfig("2.0", "img:2.0"))
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, "2.0", status.Label)
	assert.Equal(t, "http://10.0.0.7:8080", status.EndpointURL)

	var created *unstructured.Unstructured
	for _, a := range client.Actions() {
		if ca, ok := a.(k8stesting.CreateAction); ok {
			created = ca.GetObject().(*unstructured.Unstructured)
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, status.Name, created.GetName())
	assert.Equal(t, "Pod", created.GetKind())
	assert.Equal(t, testNamespace, created.GetNamespace())
	assert.Empty(t, deletedPods(client))
}

func TestManagerDeployTimeoutDeletesPod(t *testing.T) {
	client := newFakeClient()
	m := NewManagerWithClient(client, testNamespace)

	cfg := DefaultReleaseConfig("2.0", "img:2.0")
	cfg.ReadyTimeout = 100 * time.Millisecond

	_, err := m.Deploy(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Len(t, deletedPods(client), 1)
}

func TestManagerDeployTerminatedPod(t *testing.T) {
	client := newFakeClient()
	reactToGet(t, client, corev1.PodFailed, false)
	m := NewManagerWithClient(client, testNamespace)

	_, err := m.Deploy(context.Background(), DefaultReleaseConfig("2.0", "img:2.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminated")
}

func TestManagerDeployWaitsForWatchEvent(t *testing.T) {
	client := newFakeClient()
	fw := watch.NewFake()
	client.PrependWatchReactor("pods", func(k8stesting.Action) (bool, watch.Interface, error) {
		return true, fw, nil
	})
	m := NewManagerWithClient(client, testNamespace)

	var name string
	client.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		name = action.(k8stesting.CreateAction).GetObject().(*unstructured.Unstructured).GetName()
		return false, nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Blocks until the manager reads the events.
		fw.Modify(makePod(t, "pending", corev1.PodPending, false))
		fw.Modify(makePod(t, "ready", corev1.PodRunning, true))
	}()

	cfg := DefaultReleaseConfig("2.0", "img:2.0")
	cfg.ReadyTimeout = 5 * time.Second
	status, err := m.Deploy(context.Background(), cfg)
	require.NoError(t, err)
	<-done

	assert.Equal(t, name, status.Name)
	assert.Equal(t, "http://10.0.0.7:8080", status.EndpointURL)
}

func TestManagerTeardown(t *testing.T) {
	client := newFakeClient(makePod(t, "to-delete", corev1.PodRunning, true))
	m := NewManagerWithClient(client, testNamespace)

	require.NoError(t, m.Teardown(context.Background(), "to-delete"))
	assert.Equal(t, []string{"to-delete"}, deletedPods(client))

	// Deleting again is not an error.
	assert.NoError(t, m.Teardown(context.Background(), "to-delete"))
}

func TestManagerListAndGet(t *testing.T) {
	client := newFakeClient(
		makePod(t, "ready-pod", corev1.PodRunning, true),
		makePod(t, "pending-pod", corev1.PodPending, false),
	)
	m := NewManagerWithClient(client, testNamespace)

	statuses, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byName := map[string]ReleaseStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	assert.True(t, byName["ready-pod"].Ready)
	assert.Equal(t, "http://10.0.0.7:8080", byName["ready-pod"].EndpointURL)
	assert.False(t, byName["pending-pod"].Ready)
	assert.Equal(t, "Pending", byName["pending-pod"].Message)

	status, err := m.Get(context.Background(), "ready-pod")
	require.NoError(t, err)
	assert.True(t, status.Ready)

	_, err = m.Get(context.Background(), "nonexistent")
	assert.ErrorContains(t, err, "failed to get pod")
}

func TestManagerCheckAccess(t *testing.T) {
	m := NewManagerWithClient(newFakeClient(), testNamespace)
	assert.NoError(t, m.CheckAccess(context.Background()))

	client := newFakeClient()
	client.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "", nil)
	})
	m = NewManagerWithClient(client, testNamespace)
	assert.ErrorContains(t, m.CheckAccess(context.Background()), "cannot list pods")
}
