package controller

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/events"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
	"github.com/stevenplatt/k8s-controller/internal/cluster"
	"github.com/stevenplatt/k8s-controller/internal/drain"
)

const nodeRefreshFinalizer = "stable.example.com/noderefresh-finalizer"

const (
	defaultRefreshDays     = 3
	defaultCooldown        = 300 * time.Second
	defaultRequeueInterval = 5 * time.Minute

	// defaultMaxConcurrentReconciles keeps a long drain on one policy from
	// stalling the ticks of the others. The workqueue still serializes
	// invocations per policy.
	defaultMaxConcurrentReconciles = 4

	// phaseStepDelay is the requeue delay between consecutive phase
	// transitions of the same cycle.
	phaseStepDelay = time.Second
)

// NodeRefreshReconciler drives a NodeRefresh policy through its refresh
// cycle: one node at a time, cordon, drain, uncordon, cooldown.
type NodeRefreshReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder events.EventRecorder

	// Gateway performs the node and pod operations; Drainer empties one
	// node through it.
	Gateway cluster.NodeGateway
	Drainer *drain.Executor

	// HostNodeName is the node running this controller. It is excluded
	// from every cycle so the controller never drains itself.
	HostNodeName string

	// RequeueInterval is how often an Idle policy re-checks its schedule.
	RequeueInterval time.Duration

	// MaxConcurrentReconciles is how many policies may reconcile at once.
	MaxConcurrentReconciles int
}

func (r *NodeRefreshReconciler) requeueInterval() time.Duration {
	if r.RequeueInterval > 0 {
		return r.RequeueInterval
	}
	return defaultRequeueInterval
}

func (r *NodeRefreshReconciler) maxConcurrentReconciles() int {
	if r.MaxConcurrentReconciles > 0 {
		return r.MaxConcurrentReconciles
	}
	return defaultMaxConcurrentReconciles
}

// +kubebuilder:rbac:groups=stable.example.com,resources=noderefreshes,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=stable.example.com,resources=noderefreshes/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=stable.example.com,resources=noderefreshes/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=nodes,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=pods/eviction,verbs=create
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile advances the refresh cycle by at most one phase transition per
// invocation. Both the periodic schedule check and external policy edits
// arrive here; cooldown and scheduling waits are realized as RequeueAfter,
// never as a sleeping goroutine.
func (r *NodeRefreshReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var policy stablev1alpha1.NodeRefresh
	if err := r.Get(ctx, req.NamespacedName, &policy); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	// Handle deletion
	if !policy.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&policy, nodeRefreshFinalizer) {
			controllerutil.RemoveFinalizer(&policy, nodeRefreshFinalizer)
			if err := r.Update(ctx, &policy); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	// Add finalizer if not present
	if !controllerutil.ContainsFinalizer(&policy, nodeRefreshFinalizer) {
		controllerutil.AddFinalizer(&policy, nodeRefreshFinalizer)
		if err := r.Update(ctx, &policy); err != nil {
			return ctrl.Result{}, err
		}
	}

	now := time.Now()

	switch policy.Status.Phase {
	case "":
		transition(&policy.Status, stablev1alpha1.PhaseIdle, "Policy accepted, watching schedule")
		return r.persist(ctx, &policy, ctrl.Result{RequeueAfter: phaseStepDelay})

	case stablev1alpha1.PhaseIdle:
		return r.reconcileIdle(ctx, &policy, now)

	case stablev1alpha1.PhaseFindingNodes:
		return r.reconcileFindingNodes(ctx, &policy, now)

	case stablev1alpha1.PhaseProcessingNode:
		return r.reconcileProcessingNode(ctx, &policy)

	case stablev1alpha1.PhaseWaitingCooldown:
		return r.reconcileWaitingCooldown(ctx, &policy, now)

	case stablev1alpha1.PhaseSucceeded:
		next, _, err := r.nextDue(&policy, now)
		msg := "Cycle complete"
		if err == nil && !next.IsZero() {
			msg = fmt.Sprintf("Cycle complete, next refresh due at %s", next.Format(time.RFC3339))
		}
		transition(&policy.Status, stablev1alpha1.PhaseIdle, msg)
		return r.persist(ctx, &policy, ctrl.Result{RequeueAfter: r.requeueInterval()})

	case stablev1alpha1.PhaseFailed:
		// Terminal until the spec is edited.
		if policy.Generation != policy.Status.ObservedGeneration {
			logger.Info("Spec changed while Failed, resetting cycle", "policy", policy.Name)
			policy.Status.TargetNode = ""
			policy.Status.RemainingNodes = nil
			transition(&policy.Status, stablev1alpha1.PhaseIdle, "Spec changed, resetting from Failed")
			return r.persist(ctx, &policy, ctrl.Result{RequeueAfter: phaseStepDelay})
		}
		return ctrl.Result{}, nil

	default:
		logger.Info("Unknown phase, resetting to Idle", "phase", policy.Status.Phase)
		transition(&policy.Status, stablev1alpha1.PhaseIdle, fmt.Sprintf("Unknown phase %q, resetting", policy.Status.Phase))
		return r.persist(ctx, &policy, ctrl.Result{RequeueAfter: phaseStepDelay})
	}
}

// reconcileIdle decides whether a new cycle is due. An invalid policy never
// leaves Idle.
func (r *NodeRefreshReconciler) reconcileIdle(ctx context.Context, policy *stablev1alpha1.NodeRefresh, now time.Time) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if err := validateSpec(&policy.Spec); err != nil {
		logger.Info("Policy is invalid, cycle will not start", "reason", err.Error())
		appendCondition(&policy.Status, stablev1alpha1.PhaseIdle, fmt.Sprintf("Invalid policy: %v", err))
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: r.requeueInterval()})
	}

	if policy.Spec.Suspend {
		logger.Info("Policy is suspended", "policy", policy.Name)
		return ctrl.Result{RequeueAfter: r.requeueInterval()}, nil
	}

	next, due, err := r.nextDue(policy, now)
	if err != nil {
		appendCondition(&policy.Status, stablev1alpha1.PhaseIdle, fmt.Sprintf("Invalid schedule: %v", err))
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: r.requeueInterval()})
	}

	if !due {
		logger.Info("Refresh not yet due", "nextDue", next.Format(time.RFC3339))
		delay := time.Until(next)
		if delay <= 0 || delay > r.requeueInterval() {
			delay = r.requeueInterval()
		}
		return ctrl.Result{RequeueAfter: delay}, nil
	}

	inWindow, err := inMaintenanceWindow(policy.Spec.MaintenanceWindow, now)
	if err != nil {
		appendCondition(&policy.Status, stablev1alpha1.PhaseIdle, fmt.Sprintf("Invalid maintenance window: %v", err))
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: r.requeueInterval()})
	}
	if !inWindow {
		logger.Info("Refresh due but outside maintenance window, holding")
		return ctrl.Result{RequeueAfter: r.requeueInterval()}, nil
	}

	logger.Info("Refresh cycle due, starting", "policy", policy.Name)
	policy.Status.TargetNode = ""
	policy.Status.RemainingNodes = nil
	transition(&policy.Status, stablev1alpha1.PhaseFindingNodes, "Refresh cycle triggered by schedule")
	return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
}

// reconcileFindingNodes builds the working set for this cycle. The host
// node is dropped unconditionally so the controller never targets itself.
func (r *NodeRefreshReconciler) reconcileFindingNodes(ctx context.Context, policy *stablev1alpha1.NodeRefresh, now time.Time) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	nodes, err := r.Gateway.ListNodes(ctx, policy.Spec.TargetNodeLabels)
	if err != nil {
		// Transient API failure; stay in FindingNodes, the workqueue
		// backoff drives the retry.
		logger.Error(err, "Failed to list nodes")
		return ctrl.Result{}, err
	}

	var eligible []string
	for i := range nodes {
		node := &nodes[i]
		if node.Name == r.HostNodeName {
			continue
		}
		if !cluster.IsNodeReady(node) || !cluster.IsNodeSchedulable(node) {
			continue
		}
		eligible = append(eligible, node.Name)
	}

	if len(eligible) == 0 {
		logger.Info("No eligible nodes, cycle complete", "policy", policy.Name)
		return r.completeCycle(ctx, policy, now, "No eligible nodes matched the selector, nothing to refresh")
	}

	policy.Status.RemainingNodes = eligible
	transition(&policy.Status, stablev1alpha1.PhaseProcessingNode,
		fmt.Sprintf("Found %d eligible nodes to refresh", len(eligible)))
	return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
}

// reconcileProcessingNode selects a target if none is persisted, then
// drains it. Selection and draining are separate status writes so that a
// crash between them resumes with the same target instead of picking a new
// one.
func (r *NodeRefreshReconciler) reconcileProcessingNode(ctx context.Context, policy *stablev1alpha1.NodeRefresh) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if policy.Status.TargetNode == "" {
		if len(policy.Status.RemainingNodes) == 0 {
			// Nothing left to pick; repair by finishing the cycle.
			return r.completeCycle(ctx, policy, time.Now(), "Working set empty, cycle complete")
		}
		target := policy.Status.RemainingNodes[rand.Intn(len(policy.Status.RemainingNodes))]
		policy.Status.TargetNode = target
		appendCondition(&policy.Status, stablev1alpha1.PhaseProcessingNode,
			fmt.Sprintf("Selected node %s for refresh", target))
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
	}

	target := policy.Status.TargetNode
	logger.Info("Draining node", "node", target, "policy", policy.Name)
	r.Recorder.Eventf(policy, nil, corev1.EventTypeNormal, "DrainStarted", "DrainNode", "Started draining node %s", target)

	executor := r.drainExecutor(policy)
	err := executor.Drain(ctx, target, func(message string) {
		appendCondition(&policy.Status, stablev1alpha1.PhaseProcessingNode, message)
	})
	if err != nil {
		logger.Error(err, "Drain failed", "node", target)
		r.Recorder.Eventf(policy, nil, corev1.EventTypeWarning, "DrainFailed", "DrainNode", "Failed to drain node %s: %v", target, err)
		cyclesTotal.WithLabelValues("failed").Inc()
		policy.Status.TargetNode = ""
		policy.Status.RemainingNodes = nil
		transition(&policy.Status, stablev1alpha1.PhaseFailed,
			fmt.Sprintf("Drain of node %s failed: %v", target, err))
		return r.persist(ctx, policy, ctrl.Result{})
	}

	nodesRefreshed.Inc()
	r.Recorder.Eventf(policy, nil, corev1.EventTypeNormal, "DrainCompleted", "DrainNode", "Completed draining node %s", target)

	cooldown := cooldownDuration(policy)
	transition(&policy.Status, stablev1alpha1.PhaseWaitingCooldown,
		fmt.Sprintf("Node %s refreshed, cooling down for %s", target, cooldown))
	return r.persist(ctx, policy, ctrl.Result{RequeueAfter: cooldown})
}

// reconcileWaitingCooldown waits out the per-node cooldown, then removes
// the processed node from the working set and either continues or finishes.
func (r *NodeRefreshReconciler) reconcileWaitingCooldown(ctx context.Context, policy *stablev1alpha1.NodeRefresh, now time.Time) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	target := policy.Status.TargetNode
	if target == "" {
		// Persisted state is incomplete; re-enter selection rather than wedge.
		logger.Info("WaitingCooldown with no target node, re-entering selection")
		transition(&policy.Status, stablev1alpha1.PhaseProcessingNode, "Cooldown state incomplete, reselecting node")
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
	}

	cooldown := cooldownDuration(policy)
	started, ok := lastConditionTime(&policy.Status, stablev1alpha1.PhaseWaitingCooldown)
	if ok && now.Before(started.Add(cooldown)) {
		remaining := started.Add(cooldown).Sub(now)
		logger.Info("Cooldown in progress", "node", target, "remaining", remaining)
		return ctrl.Result{RequeueAfter: remaining}, nil
	}

	policy.Status.RemainingNodes = removeNode(policy.Status.RemainingNodes, target)
	policy.Status.TargetNode = ""

	if len(policy.Status.RemainingNodes) > 0 {
		transition(&policy.Status, stablev1alpha1.PhaseProcessingNode,
			fmt.Sprintf("Cooldown finished, %d nodes remaining", len(policy.Status.RemainingNodes)))
		return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
	}
	return r.completeCycle(ctx, policy, now, fmt.Sprintf("Refresh cycle completed after node %s", target))
}

// completeCycle enters Succeeded: records the refresh timestamp and clears
// the working state so the next cycle starts clean.
func (r *NodeRefreshReconciler) completeCycle(ctx context.Context, policy *stablev1alpha1.NodeRefresh, now time.Time, message string) (ctrl.Result, error) {
	refreshedAt := metav1.NewTime(now)
	policy.Status.LastRefreshAt = &refreshedAt
	policy.Status.TargetNode = ""
	policy.Status.RemainingNodes = nil
	cyclesTotal.WithLabelValues("succeeded").Inc()
	transition(&policy.Status, stablev1alpha1.PhaseSucceeded, message)
	r.Recorder.Eventf(policy, nil, corev1.EventTypeNormal, "CycleSucceeded", "RefreshCycle", "%s", message)
	return r.persist(ctx, policy, ctrl.Result{RequeueAfter: phaseStepDelay})
}

// persist writes status through the status subresource. A conflicting
// concurrent edit fails the write; the error aborts this tick and the next
// invocation re-reads fresh state instead of overwriting it.
func (r *NodeRefreshReconciler) persist(ctx context.Context, policy *stablev1alpha1.NodeRefresh, result ctrl.Result) (ctrl.Result, error) {
	policy.Status.ObservedGeneration = policy.Generation
	if err := r.Status().Update(ctx, policy); err != nil {
		return ctrl.Result{}, err
	}
	return result, nil
}

// drainExecutor applies the policy's drain overrides on top of the shared
// executor configuration.
func (r *NodeRefreshReconciler) drainExecutor(policy *stablev1alpha1.NodeRefresh) *drain.Executor {
	executor := *r.Drainer
	cfg := policy.Spec.Drain
	if cfg.MaxEvictionAttempts != nil {
		executor.MaxEvictionAttempts = int(*cfg.MaxEvictionAttempts)
	}
	if cfg.EvictionRetryDelaySeconds != nil {
		executor.EvictionRetryDelay = time.Duration(*cfg.EvictionRetryDelaySeconds) * time.Second
	}
	if cfg.TimeoutSeconds != nil {
		executor.Timeout = time.Duration(*cfg.TimeoutSeconds) * time.Second
	}
	if cfg.GracePeriodSeconds != nil {
		executor.GracePeriod = cfg.GracePeriodSeconds
	}
	return &executor
}

// nextDue computes when the next cycle is due and whether it already is.
// A policy that has never refreshed is due immediately.
func (r *NodeRefreshReconciler) nextDue(policy *stablev1alpha1.NodeRefresh, now time.Time) (time.Time, bool, error) {
	last := policy.Status.LastRefreshAt

	if policy.Spec.Schedule != nil {
		schedule, loc, err := parseCronSchedule(policy.Spec.Schedule)
		if err != nil {
			return time.Time{}, false, err
		}
		if last == nil {
			return now, true, nil
		}
		next := schedule.Next(last.Time.In(loc))
		return next, !next.After(now), nil
	}

	days := defaultRefreshDays
	if policy.Spec.RefreshScheduleDays != nil {
		days = int(*policy.Spec.RefreshScheduleDays)
	}
	if last == nil {
		return now, true, nil
	}
	next := last.Time.Add(time.Duration(days) * 24 * time.Hour)
	return next, !now.Before(next), nil
}

// parseCronSchedule parses the cron expression and returns the schedule and location
func parseCronSchedule(s *stablev1alpha1.CronSchedule) (cron.Schedule, *time.Location, error) {
	loc := time.UTC
	if s.Timezone != "" {
		l, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(s.Cron)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}

	return schedule, loc, nil
}

// validateSpec rejects policies that must never start a cycle.
func validateSpec(spec *stablev1alpha1.NodeRefreshSpec) error {
	if len(spec.TargetNodeLabels) == 0 {
		return fmt.Errorf("targetNodeLabels must not be empty")
	}
	if spec.RefreshScheduleDays != nil && *spec.RefreshScheduleDays <= 0 {
		return fmt.Errorf("refreshScheduleDays must be positive, got %d", *spec.RefreshScheduleDays)
	}
	if spec.NodeCooldownSeconds != nil && *spec.NodeCooldownSeconds < 0 {
		return fmt.Errorf("nodeCooldownSeconds must not be negative, got %d", *spec.NodeCooldownSeconds)
	}
	if spec.Schedule != nil {
		if _, _, err := parseCronSchedule(spec.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func cooldownDuration(policy *stablev1alpha1.NodeRefresh) time.Duration {
	if policy.Spec.NodeCooldownSeconds != nil {
		return time.Duration(*policy.Spec.NodeCooldownSeconds) * time.Second
	}
	return defaultCooldown
}

// SetupWithManager sets up the controller with the Manager
func (r *NodeRefreshReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&stablev1alpha1.NodeRefresh{}).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.maxConcurrentReconciles()}).
		Complete(r)
}
