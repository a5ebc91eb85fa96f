package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
)

//go:embed static
var staticFiles embed.FS

var log = logf.Log.WithName("dashboard")

// recentConditionCount limits how much of the append-only cycle log the
// API returns per policy.
const recentConditionCount = 10

// Server serves the dashboard UI and API endpoints.
// It implements manager.Runnable so it can be registered with the controller manager.
type Server struct {
	addr   string
	reader client.Reader
}

// NewServer creates a new dashboard server.
func NewServer(addr string, reader client.Reader) *Server {
	return &Server{addr: addr, reader: reader}
}

// Start implements manager.Runnable. It starts the HTTP server and blocks until
// the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/overview", s.handleOverview)
	mux.HandleFunc("/api/refreshes", s.handleRefreshes)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return err
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting dashboard server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// OverviewResponse is the JSON response for GET /api/overview.
type OverviewResponse struct {
	TotalPolicies  int `json:"totalPolicies"`
	IdleCount      int `json:"idleCount"`
	ActiveCount    int `json:"activeCount"`
	FailedCount    int `json:"failedCount"`
	NodesRemaining int `json:"nodesRemaining"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var policies stablev1alpha1.NodeRefreshList
	if err := s.reader.List(ctx, &policies); err != nil {
		http.Error(w, "failed to list refresh policies", http.StatusInternalServerError)
		return
	}

	resp := OverviewResponse{
		TotalPolicies: len(policies.Items),
	}
	for _, policy := range policies.Items {
		switch policy.Status.Phase {
		case stablev1alpha1.PhaseFailed:
			resp.FailedCount++
		case stablev1alpha1.PhaseFindingNodes, stablev1alpha1.PhaseProcessingNode, stablev1alpha1.PhaseWaitingCooldown:
			resp.ActiveCount++
		default:
			resp.IdleCount++
		}
		resp.NodesRemaining += len(policy.Status.RemainingNodes)
	}

	writeJSON(w, resp)
}

// RefreshResponse is the JSON response for a single policy in GET /api/refreshes.
type RefreshResponse struct {
	Name             string                            `json:"name"`
	Phase            string                            `json:"phase"`
	TargetNode       string                            `json:"targetNode"`
	TargetNodeLabels map[string]string                 `json:"targetNodeLabels,omitempty"`
	RemainingNodes   []string                          `json:"remainingNodes"`
	LastRefreshAt    *string                           `json:"lastRefreshAt"`
	Suspended        bool                              `json:"suspended"`
	RecentConditions []stablev1alpha1.RefreshCondition `json:"recentConditions"`
}

func (s *Server) handleRefreshes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var policies stablev1alpha1.NodeRefreshList
	if err := s.reader.List(ctx, &policies); err != nil {
		http.Error(w, "failed to list refresh policies", http.StatusInternalServerError)
		return
	}

	result := make([]RefreshResponse, 0, len(policies.Items))
	for _, policy := range policies.Items {
		pr := RefreshResponse{
			Name:             policy.Name,
			Phase:            string(policy.Status.Phase),
			TargetNode:       policy.Status.TargetNode,
			TargetNodeLabels: policy.Spec.TargetNodeLabels,
			RemainingNodes:   policy.Status.RemainingNodes,
			Suspended:        policy.Spec.Suspend,
		}
		if pr.Phase == "" {
			pr.Phase = string(stablev1alpha1.PhaseIdle)
		}
		if pr.RemainingNodes == nil {
			pr.RemainingNodes = []string{}
		}
		if policy.Status.LastRefreshAt != nil {
			t := policy.Status.LastRefreshAt.Format(time.RFC3339)
			pr.LastRefreshAt = &t
		}
		conditions := policy.Status.Conditions
		if len(conditions) > recentConditionCount {
			conditions = conditions[len(conditions)-recentConditionCount:]
		}
		pr.RecentConditions = conditions
		if pr.RecentConditions == nil {
			pr.RecentConditions = []stablev1alpha1.RefreshCondition{}
		}
		result = append(result, pr)
	}

	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "failed to encode JSON response")
	}
}
