package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// NoPromptsEnv tells the release entry point to suppress interactive prompts.
const NoPromptsEnv = "VERSION_MATRIX_NO_PROMPTS"

const (
	managedBy     = "version-matrix"
	labelKey      = "version-matrix.giantswarm.io/version"
	containerName = "app"
)

// BuildPod creates a typed Pod running one release. Every session gets its
// own Pod, so names carry a random suffix.
func BuildPod(cfg ReleaseConfig, namespace string) *corev1.Pod {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	env := []corev1.EnvVar{{Name: NoPromptsEnv, Value: strconv.FormatBool(cfg.NoPrompts)}}
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: cfg.Env[k]})
	}

	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(cfg.Label),
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": managedBy,
				labelKey:                       sanitizeName(cfg.Label),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:  containerName,
				Image: cfg.Image,
				Env:   env,
				Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: int32(port)}},
				ReadinessProbe: &corev1.Probe{
					ProbeHandler: corev1.ProbeHandler{
						HTTPGet: &corev1.HTTPGetAction{Path: "/version", Port: intstr.FromInt32(int32(port))},
					},
					PeriodSeconds: 2,
				},
			}},
		},
	}
}

func podName(label string) string {
	suffix := uuid.NewString()[:8]
	base := sanitizeName("vm-" + label)
	if limit := 63 - len(suffix) - 1; len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}
	return base + "-" + suffix
}

// isReady reports whether the Pod's Ready condition is true.
func isReady(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// hasTerminated reports whether the Pod stopped and can never become ready.
func hasTerminated(pod *corev1.Pod) bool {
	return pod.Status.Phase == corev1.PodFailed || pod.Status.Phase == corev1.PodSucceeded
}

func endpointURL(pod *corev1.Pod) string {
	port := DefaultPort
	if cs := pod.Spec.Containers; len(cs) > 0 && len(cs[0].Ports) > 0 {
		port = int(cs[0].Ports[0].ContainerPort)
	}
	return fmt.Sprintf("http://%s:%d", pod.Status.PodIP, port)
}

// toUnstructured converts a typed Pod to an unstructured object for use with
// the dynamic Kubernetes client.
func toUnstructured(pod *corev1.Pod) (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(pod)
	if err != nil {
		return nil, fmt.Errorf("failed to convert Pod to unstructured: %w", err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

// fromUnstructured converts an unstructured object back to a typed Pod.
func fromUnstructured(obj *unstructured.Unstructured) (*corev1.Pod, error) {
	pod := &corev1.Pod{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, pod); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to Pod: %w", err)
	}
	return pod, nil
}

// sanitizeName converts a version label to a valid Kubernetes resource name.
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			result = append(result, byte(c))
		case c >= 'A' && c <= 'Z':
			result = append(result, byte(c-'A'+'a'))
		case c == '_', c == '.', c == '/', c == '@', c == ':':
			result = append(result, '-')
		}
	}

	if len(result) > 0 && (result[0] < 'a' || result[0] > 'z') {
		result = append([]byte("v-"), result...)
	}
	if len(result) > 63 {
		result = result[:63]
	}
	return strings.Trim(string(result), "-")
}
