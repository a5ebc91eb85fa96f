package drain

import (
	"context"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// stubGateway scripts gateway behavior so eviction edge cases can be
// exercised without a cluster.
type stubGateway struct {
	pods []corev1.Pod

	cordoned   []string
	uncordoned []string

	cordonErr   error
	listPodsErr error

	// rejections is the number of disruption budget rejections to return
	// per pod before accepting the eviction.
	rejections map[string]int

	// evictErr makes every eviction fail fatally.
	evictErr error

	// keepPods leaves evicted pods on the node so the wait loop times out.
	keepPods bool

	evictions map[string]int
}

func (g *stubGateway) ListNodes(ctx context.Context, selector map[string]string) ([]corev1.Node, error) {
	return nil, nil
}

func (g *stubGateway) Cordon(ctx context.Context, nodeName string) error {
	if g.cordonErr != nil {
		return g.cordonErr
	}
	g.cordoned = append(g.cordoned, nodeName)
	return nil
}

func (g *stubGateway) Uncordon(ctx context.Context, nodeName string) error {
	g.uncordoned = append(g.uncordoned, nodeName)
	return nil
}

func (g *stubGateway) ListPods(ctx context.Context, nodeName string) ([]corev1.Pod, error) {
	if g.listPodsErr != nil {
		return nil, g.listPodsErr
	}
	out := make([]corev1.Pod, len(g.pods))
	copy(out, g.pods)
	return out, nil
}

func (g *stubGateway) Evict(ctx context.Context, pod *corev1.Pod, gracePeriod *int64) error {
	if g.evictions == nil {
		g.evictions = map[string]int{}
	}
	g.evictions[pod.Name]++

	if g.evictErr != nil {
		return g.evictErr
	}
	if g.rejections[pod.Name] > 0 {
		g.rejections[pod.Name]--
		return apierrors.NewTooManyRequests("disruption budget", 1)
	}
	if !g.keepPods {
		for i := range g.pods {
			if g.pods[i].Name == pod.Name && g.pods[i].Namespace == pod.Namespace {
				g.pods = append(g.pods[:i], g.pods[i+1:]...)
				break
			}
		}
	}
	return nil
}

func makePod(name, namespace string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PodSpec{NodeName: "node-1"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func makeDaemonPod(name string) corev1.Pod {
	pod := makePod(name, "kube-system")
	pod.OwnerReferences = []metav1.OwnerReference{{Kind: "DaemonSet", Name: "ds"}}
	return pod
}

func makeMirrorPod(name string) corev1.Pod {
	pod := makePod(name, "kube-system")
	pod.Annotations = map[string]string{"kubernetes.io/config.mirror": "checksum"}
	return pod
}

func newTestExecutor(g *stubGateway) *Executor {
	return &Executor{
		Gateway:            g,
		OperatorNamespace:  "operators",
		OperatorPodLabels:  map[string]string{"app": "node-refresh-operator"},
		EvictionRetryDelay: time.Millisecond,
		PollInterval:       time.Millisecond,
		Timeout:            200 * time.Millisecond,
	}
}

// --- Tests ---

func TestDrain_EmptyNodeIsNoop(t *testing.T) {
	gw := &stubGateway{}
	executor := newTestExecutor(gw)

	var messages []string
	err := executor.Drain(context.Background(), "node-1", func(m string) { messages = append(messages, m) })
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if len(gw.cordoned) != 1 || gw.cordoned[0] != "node-1" {
		t.Errorf("Expected node-1 to be cordoned, got %v", gw.cordoned)
	}
	if len(gw.uncordoned) != 1 || gw.uncordoned[0] != "node-1" {
		t.Errorf("Expected node-1 to be uncordoned, got %v", gw.uncordoned)
	}
	if len(messages) == 0 || !strings.Contains(messages[0], "Cordoned") {
		t.Errorf("Expected first report to be the cordon, got %v", messages)
	}
}

func TestDrain_EvictsRegularPods(t *testing.T) {
	gw := &stubGateway{
		pods: []corev1.Pod{makePod("web-1", "default"), makePod("web-2", "default")},
	}
	executor := newTestExecutor(gw)

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if gw.evictions["web-1"] != 1 || gw.evictions["web-2"] != 1 {
		t.Errorf("Expected one eviction per pod, got %v", gw.evictions)
	}
	if len(gw.uncordoned) != 1 {
		t.Errorf("Expected node to be uncordoned after drain, got %v", gw.uncordoned)
	}
}

func TestDrain_SkipsProtectedPods(t *testing.T) {
	terminating := makePod("terminating", "default")
	now := metav1.Now()
	terminating.DeletionTimestamp = &now

	operatorPod := makePod("operator", "operators")
	operatorPod.Labels = map[string]string{"app": "node-refresh-operator"}

	gw := &stubGateway{
		pods: []corev1.Pod{
			makePod("web-1", "default"),
			makeDaemonPod("ds-pod"),
			makeMirrorPod("mirror-pod"),
			terminating,
			operatorPod,
		},
		keepPods: true,
	}
	executor := newTestExecutor(gw)

	// web-1 stays on the node because keepPods is set, so the drain times
	// out; what matters here is which pods were targeted at all.
	_ = executor.Drain(context.Background(), "node-1", func(string) {})

	if len(gw.evictions) != 1 || gw.evictions["web-1"] == 0 {
		t.Errorf("Expected only web-1 to be targeted for eviction, got %v", gw.evictions)
	}
}

func TestDrain_RetriesRejectedEviction(t *testing.T) {
	gw := &stubGateway{
		pods:       []corev1.Pod{makePod("web-1", "default")},
		rejections: map[string]int{"web-1": 3},
	}
	executor := newTestExecutor(gw)

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	// 3 rejections then an accepted attempt.
	if gw.evictions["web-1"] != 4 {
		t.Errorf("Expected 4 eviction attempts, got %d", gw.evictions["web-1"])
	}
}

func TestDrain_RetryBudgetExhausted(t *testing.T) {
	gw := &stubGateway{
		pods:       []corev1.Pod{makePod("web-1", "default")},
		rejections: map[string]int{"web-1": 100},
	}
	executor := newTestExecutor(gw)
	executor.MaxEvictionAttempts = 3

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err == nil {
		t.Fatal("Expected an error when the retry budget is exhausted")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Expected error to name the attempt budget, got: %v", err)
	}
	if gw.evictions["web-1"] != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", gw.evictions["web-1"])
	}
	if len(gw.uncordoned) != 1 {
		t.Error("Expected node to be uncordoned after a failed drain")
	}
}

func TestDrain_GonePodIsSuccess(t *testing.T) {
	gw := &stubGateway{
		pods:     []corev1.Pod{makePod("web-1", "default")},
		evictErr: apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, "web-1"),
	}
	executor := newTestExecutor(gw)

	pod := makePod("web-1", "default")
	err := executor.evictWithRetry(context.Background(), &pod)
	if err != nil {
		t.Fatalf("Expected NotFound during eviction to be treated as success, got %v", err)
	}
	if gw.evictions["web-1"] != 1 {
		t.Errorf("Expected a single attempt, got %d", gw.evictions["web-1"])
	}
}

func TestDrain_FatalEvictionError(t *testing.T) {
	gw := &stubGateway{
		pods:     []corev1.Pod{makePod("web-1", "default")},
		evictErr: apierrors.NewBadRequest("boom"),
	}
	executor := newTestExecutor(gw)

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err == nil {
		t.Fatal("Expected a fatal eviction error to fail the drain")
	}
	if gw.evictions["web-1"] != 1 {
		t.Errorf("Expected no retries for a fatal error, got %d attempts", gw.evictions["web-1"])
	}
	if len(gw.uncordoned) != 1 {
		t.Error("Expected node to be uncordoned after a failed drain")
	}
}

func TestDrain_CordonFailureSkipsUncordon(t *testing.T) {
	gw := &stubGateway{cordonErr: apierrors.NewBadRequest("boom")}
	executor := newTestExecutor(gw)

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err == nil {
		t.Fatal("Expected cordon failure to fail the drain")
	}
	if len(gw.uncordoned) != 0 {
		t.Errorf("Expected no uncordon when the cordon never happened, got %v", gw.uncordoned)
	}
}

func TestDrain_WaitTimeout(t *testing.T) {
	gw := &stubGateway{
		pods:     []corev1.Pod{makePod("stuck", "default")},
		keepPods: true,
	}
	executor := newTestExecutor(gw)
	executor.Timeout = 20 * time.Millisecond

	err := executor.Drain(context.Background(), "node-1", func(string) {})
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") || !strings.Contains(err.Error(), "default/stuck") {
		t.Errorf("Expected timeout error naming the remaining pod, got: %v", err)
	}
	if len(gw.uncordoned) != 1 {
		t.Error("Expected node to be uncordoned after a timed out drain")
	}
}

func TestDrain_ReportsProgress(t *testing.T) {
	gw := &stubGateway{
		pods: []corev1.Pod{makePod("web-1", "default")},
	}
	executor := newTestExecutor(gw)

	var messages []string
	err := executor.Drain(context.Background(), "node-1", func(m string) { messages = append(messages, m) })
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if len(messages) < 3 {
		t.Fatalf("Expected cordon, targeting and completion reports, got %v", messages)
	}
	last := messages[len(messages)-1]
	if !strings.Contains(last, "Uncordoned") {
		t.Errorf("Expected the final report to be the uncordon, got %q", last)
	}
}

func TestDrain_ContextCancellation(t *testing.T) {
	gw := &stubGateway{
		pods:       []corev1.Pod{makePod("web-1", "default")},
		rejections: map[string]int{"web-1": 100},
	}
	executor := newTestExecutor(gw)
	executor.EvictionRetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := executor.Drain(ctx, "node-1", func(string) {})
	if err == nil {
		t.Fatal("Expected cancellation to abort the drain")
	}
	if len(gw.uncordoned) != 1 {
		t.Error("Expected node to be uncordoned after cancellation")
	}
}
