// Package cluster wraps the handful of node and pod operations the refresh
// engine needs, so the engine can be tested against a fake gateway.
package cluster

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const mirrorPodAnnotation = "kubernetes.io/config.mirror"

// NodeGateway is the capability set the refresh engine consumes.
type NodeGateway interface {
	// ListNodes returns nodes matching all the given labels.
	ListNodes(ctx context.Context, selector map[string]string) ([]corev1.Node, error)

	// Cordon marks a node unschedulable. Cordoning an already-cordoned
	// node is a no-op success.
	Cordon(ctx context.Context, nodeName string) error

	// Uncordon marks a node schedulable again.
	Uncordon(ctx context.Context, nodeName string) error

	// ListPods returns the active (non-terminal) pods on a node.
	ListPods(ctx context.Context, nodeName string) ([]corev1.Pod, error)

	// Evict issues an eviction request for a pod. A PDB rejection
	// surfaces as an error for which IsEvictionRejected returns true.
	Evict(ctx context.Context, pod *corev1.Pod, gracePeriod *int64) error
}

// IsEvictionRejected reports whether an eviction error is a disruption
// budget rejection (HTTP 429), which is transient and retryable.
func IsEvictionRejected(err error) bool {
	return apierrors.IsTooManyRequests(err)
}

// IsGone reports whether the error means the object no longer exists,
// which a drain treats as success.
func IsGone(err error) bool {
	return apierrors.IsNotFound(err)
}

// Gateway implements NodeGateway over a controller-runtime client.
type Gateway struct {
	client client.Client
}

// NewGateway creates a Gateway backed by the given client.
func NewGateway(c client.Client) *Gateway {
	return &Gateway{client: c}
}

func (g *Gateway) ListNodes(ctx context.Context, selector map[string]string) ([]corev1.Node, error) {
	var nodeList corev1.NodeList
	if err := g.client.List(ctx, &nodeList, client.MatchingLabels(selector)); err != nil {
		return nil, err
	}
	return nodeList.Items, nil
}

func (g *Gateway) Cordon(ctx context.Context, nodeName string) error {
	return g.setUnschedulable(ctx, nodeName, true)
}

func (g *Gateway) Uncordon(ctx context.Context, nodeName string) error {
	return g.setUnschedulable(ctx, nodeName, false)
}

func (g *Gateway) setUnschedulable(ctx context.Context, nodeName string, unschedulable bool) error {
	var node corev1.Node
	if err := g.client.Get(ctx, client.ObjectKey{Name: nodeName}, &node); err != nil {
		return err
	}
	if node.Spec.Unschedulable == unschedulable {
		return nil
	}
	patch := client.MergeFrom(node.DeepCopy())
	node.Spec.Unschedulable = unschedulable
	return g.client.Patch(ctx, &node, patch)
}

// ListPods lists cluster-wide and filters by spec.nodeName in process.
// A field selector would need an index the fake client does not have.
func (g *Gateway) ListPods(ctx context.Context, nodeName string) ([]corev1.Pod, error) {
	var podList corev1.PodList
	if err := g.client.List(ctx, &podList); err != nil {
		return nil, err
	}

	var pods []corev1.Pod
	for i := range podList.Items {
		pod := &podList.Items[i]
		if pod.Spec.NodeName != nodeName {
			continue
		}
		if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
			continue
		}
		pods = append(pods, *pod)
	}
	return pods, nil
}

func (g *Gateway) Evict(ctx context.Context, pod *corev1.Pod, gracePeriod *int64) error {
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
	}
	if gracePeriod != nil {
		eviction.DeleteOptions = &metav1.DeleteOptions{
			GracePeriodSeconds: gracePeriod,
		}
	}
	return g.client.SubResource("eviction").Create(ctx, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
	}, eviction)
}

// IsDaemonPod reports whether a pod is owned by a DaemonSet or is a
// static mirror pod. Such pods stay on the node during a drain.
func IsDaemonPod(pod *corev1.Pod) bool {
	if _, ok := pod.Annotations[mirrorPodAnnotation]; ok {
		return true
	}
	for _, ref := range pod.OwnerReferences {
		if ref.Kind == "DaemonSet" {
			return true
		}
	}
	return false
}

// IsNodeReady checks if a node has the Ready condition set to True
func IsNodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// IsNodeSchedulable reports whether a node is not cordoned.
func IsNodeSchedulable(node *corev1.Node) bool {
	return !node.Spec.Unschedulable
}
