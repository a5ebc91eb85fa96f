package dashboard

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
)

func newScheme() *runtime.Scheme {
	s := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(s))
	utilruntime.Must(stablev1alpha1.AddToScheme(s))
	return s
}

func TestOverviewEmpty(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme()).Build()
	srv := NewServer(":0", cl)

	req := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	rec := httptest.NewRecorder()
	srv.handleOverview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp OverviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalPolicies != 0 {
		t.Errorf("expected 0 policies, got %d", resp.TotalPolicies)
	}
	if resp.NodesRemaining != 0 {
		t.Errorf("expected 0 nodes remaining, got %d", resp.NodesRemaining)
	}
}

func TestOverviewWithPolicies(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(
		&stablev1alpha1.NodeRefresh{
			ObjectMeta: metav1.ObjectMeta{Name: "workers"},
			Status: stablev1alpha1.NodeRefreshStatus{
				Phase:          stablev1alpha1.PhaseProcessingNode,
				TargetNode:     "worker-1",
				RemainingNodes: []string{"worker-1", "worker-2"},
			},
		},
		&stablev1alpha1.NodeRefresh{
			ObjectMeta: metav1.ObjectMeta{Name: "gpu-pool"},
			Status: stablev1alpha1.NodeRefreshStatus{
				Phase: stablev1alpha1.PhaseFailed,
			},
		},
		&stablev1alpha1.NodeRefresh{
			ObjectMeta: metav1.ObjectMeta{Name: "spot-pool"},
			Status: stablev1alpha1.NodeRefreshStatus{
				Phase: stablev1alpha1.PhaseIdle,
			},
		},
	).Build()

	srv := NewServer(":0", cl)

	req := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	rec := httptest.NewRecorder()
	srv.handleOverview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp OverviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalPolicies != 3 {
		t.Errorf("expected 3 policies, got %d", resp.TotalPolicies)
	}
	if resp.ActiveCount != 1 {
		t.Errorf("expected 1 active, got %d", resp.ActiveCount)
	}
	if resp.FailedCount != 1 {
		t.Errorf("expected 1 failed, got %d", resp.FailedCount)
	}
	if resp.IdleCount != 1 {
		t.Errorf("expected 1 idle, got %d", resp.IdleCount)
	}
	if resp.NodesRemaining != 2 {
		t.Errorf("expected 2 nodes remaining, got %d", resp.NodesRemaining)
	}
}

func TestRefreshesEndpoint(t *testing.T) {
	lastRefresh := metav1.NewTime(time.Now().Add(-24 * time.Hour))

	conditions := make([]stablev1alpha1.RefreshCondition, 0, 15)
	for i := 0; i < 15; i++ {
		conditions = append(conditions, stablev1alpha1.RefreshCondition{
			Timestamp: metav1.Now(),
			Phase:     stablev1alpha1.PhaseProcessingNode,
			Message:   "step",
		})
	}

	cl := fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(
		&stablev1alpha1.NodeRefresh{
			ObjectMeta: metav1.ObjectMeta{Name: "workers"},
			Spec: stablev1alpha1.NodeRefreshSpec{
				TargetNodeLabels: map[string]string{"pool": "workers"},
				Suspend:          true,
			},
			Status: stablev1alpha1.NodeRefreshStatus{
				Phase:          stablev1alpha1.PhaseWaitingCooldown,
				TargetNode:     "worker-3",
				RemainingNodes: []string{"worker-3", "worker-4"},
				LastRefreshAt:  &lastRefresh,
				Conditions:     conditions,
			},
		},
	).Build()

	srv := NewServer(":0", cl)

	req := httptest.NewRequest(http.MethodGet, "/api/refreshes", nil)
	rec := httptest.NewRecorder()
	srv.handleRefreshes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result []RefreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(result))
	}

	policy := result[0]
	if policy.Name != "workers" {
		t.Errorf("expected name workers, got %s", policy.Name)
	}
	if policy.Phase != string(stablev1alpha1.PhaseWaitingCooldown) {
		t.Errorf("expected phase WaitingCooldown, got %s", policy.Phase)
	}
	if policy.TargetNode != "worker-3" {
		t.Errorf("expected target worker-3, got %s", policy.TargetNode)
	}
	if !policy.Suspended {
		t.Error("expected suspended=true")
	}
	if policy.LastRefreshAt == nil {
		t.Error("expected lastRefreshAt to be set")
	}
	if len(policy.RemainingNodes) != 2 {
		t.Errorf("expected 2 remaining nodes, got %d", len(policy.RemainingNodes))
	}
	if len(policy.RecentConditions) != recentConditionCount {
		t.Errorf("expected conditions to be capped at %d, got %d", recentConditionCount, len(policy.RecentConditions))
	}
}

func TestRefreshesEmptyPhaseShowsIdle(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme()).WithObjects(
		&stablev1alpha1.NodeRefresh{
			ObjectMeta: metav1.ObjectMeta{Name: "fresh"},
			Spec: stablev1alpha1.NodeRefreshSpec{
				TargetNodeLabels: map[string]string{"pool": "workers"},
			},
		},
	).Build()

	srv := NewServer(":0", cl)

	req := httptest.NewRequest(http.MethodGet, "/api/refreshes", nil)
	rec := httptest.NewRecorder()
	srv.handleRefreshes(rec, req)

	var result []RefreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(result))
	}
	if result[0].Phase != string(stablev1alpha1.PhaseIdle) {
		t.Errorf("expected empty phase to render as Idle, got %s", result[0].Phase)
	}
}

func TestRefreshesEmptyState(t *testing.T) {
	cl := fake.NewClientBuilder().WithScheme(newScheme()).Build()
	srv := NewServer(":0", cl)

	req := httptest.NewRequest(http.MethodGet, "/api/refreshes", nil)
	rec := httptest.NewRecorder()
	srv.handleRefreshes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result []RefreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected 0 policies, got %d", len(result))
	}
}

func TestStaticFileServing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		t.Fatalf("failed to create sub fs: %v", err)
	}
	handler := http.FileServer(http.FS(sub))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for static file, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected Content-Type header to be set")
	}
}
