package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RefreshPhase describes where a refresh cycle currently is.
type RefreshPhase string

const (
	// PhaseIdle means no cycle is running; the policy is waiting for its schedule.
	PhaseIdle RefreshPhase = "Idle"

	// PhaseFindingNodes means a cycle has started and eligible nodes are being listed.
	PhaseFindingNodes RefreshPhase = "FindingNodes"

	// PhaseProcessingNode means one node is being cordoned and drained.
	PhaseProcessingNode RefreshPhase = "ProcessingNode"

	// PhaseWaitingCooldown means a node finished draining and the per-node
	// cooldown is elapsing before the next node is picked.
	PhaseWaitingCooldown RefreshPhase = "WaitingCooldown"

	// PhaseSucceeded means every eligible node was refreshed in this cycle.
	PhaseSucceeded RefreshPhase = "Succeeded"

	// PhaseFailed means the cycle hit a fatal error and needs operator intervention.
	// The controller leaves this phase only when the spec is edited.
	PhaseFailed RefreshPhase = "Failed"
)

// NodeRefreshSpec defines the desired state of NodeRefresh
type NodeRefreshSpec struct {
	// TargetNodeLabels selects which nodes are eligible for refresh.
	// Must contain at least one key/value pair.
	TargetNodeLabels map[string]string `json:"targetNodeLabels"`

	// RefreshScheduleDays is the number of days between refresh cycles.
	// Defaults to 3.
	// +optional
	// +kubebuilder:validation:Minimum=1
	RefreshScheduleDays *int32 `json:"refreshScheduleDays,omitempty"`

	// NodeCooldownSeconds is the pause between finishing one node and
	// starting the next within a cycle. Defaults to 300.
	// +optional
	// +kubebuilder:validation:Minimum=0
	NodeCooldownSeconds *int32 `json:"nodeCooldownSeconds,omitempty"`

	// Schedule optionally replaces the day-based cadence with a cron
	// expression. When set, a cycle is due once a cron tick has fired
	// after the last completed refresh.
	// +optional
	Schedule *CronSchedule `json:"schedule,omitempty"`

	// MaintenanceWindow restricts when a cycle may start. Outside the
	// window a due cycle stays Idle until the window opens.
	// +optional
	MaintenanceWindow *MaintenanceWindow `json:"maintenanceWindow,omitempty"`

	// Drain configures per-node drain behavior.
	// +optional
	Drain DrainConfig `json:"drain,omitempty"`

	// Suspend prevents the policy from starting new cycles when true.
	// +optional
	Suspend bool `json:"suspend,omitempty"`
}

// CronSchedule is a cron expression plus timezone for cycle scheduling
type CronSchedule struct {
	// Cron is the cron expression defining when a refresh cycle is due (e.g. "0 2 * * 6")
	// +kubebuilder:validation:MinLength=9
	Cron string `json:"cron"`

	// Timezone is the IANA timezone for the cron schedule (e.g. "Europe/Paris").
	// Defaults to UTC if not specified.
	// +optional
	Timezone string `json:"timezone,omitempty"`
}

// MaintenanceWindow is a daily time window during which cycles may start
type MaintenanceWindow struct {
	// Start is the window opening time in "HH:MM" 24h format
	Start string `json:"start"`

	// End is the window closing time in "HH:MM" 24h format.
	// End before Start means the window spans midnight.
	End string `json:"end"`

	// Days restricts the window to specific weekdays (0=Sunday..6=Saturday).
	// Empty means every day.
	// +optional
	Days []int `json:"days,omitempty"`

	// Timezone is the IANA timezone for the window. Defaults to UTC.
	// +optional
	Timezone string `json:"timezone,omitempty"`
}

// DrainConfig configures drain behavior for a single node
type DrainConfig struct {
	// MaxEvictionAttempts bounds retries of a PDB-rejected eviction.
	// Defaults to 5.
	// +optional
	// +kubebuilder:validation:Minimum=1
	MaxEvictionAttempts *int32 `json:"maxEvictionAttempts,omitempty"`

	// EvictionRetryDelaySeconds is the base delay between eviction retries;
	// the actual delay grows with the attempt count. Defaults to 30.
	// +optional
	// +kubebuilder:validation:Minimum=1
	EvictionRetryDelaySeconds *int32 `json:"evictionRetryDelaySeconds,omitempty"`

	// TimeoutSeconds is the maximum time to wait for a node to become
	// empty after evictions are issued. Defaults to 300.
	// +optional
	// +kubebuilder:validation:Minimum=30
	TimeoutSeconds *int32 `json:"timeoutSeconds,omitempty"`

	// GracePeriodSeconds is the grace period for pod termination.
	// If not set, uses each pod's terminationGracePeriodSeconds.
	// +optional
	// +kubebuilder:validation:Minimum=0
	GracePeriodSeconds *int64 `json:"gracePeriodSeconds,omitempty"`
}

// RefreshCondition is one entry in the append-only cycle log
type RefreshCondition struct {
	// Timestamp is when the condition was recorded
	Timestamp metav1.Time `json:"timestamp"`

	// Phase is the cycle phase the condition was recorded in
	Phase RefreshPhase `json:"phase"`

	// Message is a human-readable description of what happened
	Message string `json:"message"`
}

// NodeRefreshStatus defines the observed state of NodeRefresh
type NodeRefreshStatus struct {
	// Phase is the current cycle phase
	// +optional
	Phase RefreshPhase `json:"phase,omitempty"`

	// TargetNode is the node currently being processed.
	// Set only while phase is ProcessingNode or WaitingCooldown.
	// +optional
	TargetNode string `json:"targetNode,omitempty"`

	// LastRefreshAt is when the last cycle completed successfully
	// +optional
	LastRefreshAt *metav1.Time `json:"lastRefreshAt,omitempty"`

	// RemainingNodes is the working set of eligible nodes not yet
	// processed in the current cycle
	// +optional
	RemainingNodes []string `json:"remainingNodes,omitempty"`

	// Conditions is the append-only log of cycle transitions and drain steps
	// +optional
	Conditions []RefreshCondition `json:"conditions,omitempty"`

	// ObservedGeneration is the spec generation the controller last acted on
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Target",type="string",JSONPath=".status.targetNode"
// +kubebuilder:printcolumn:name="Last Refresh",type="date",JSONPath=".status.lastRefreshAt"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// NodeRefresh is the Schema for the noderefreshes API
type NodeRefresh struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   NodeRefreshSpec   `json:"spec,omitempty"`
	Status NodeRefreshStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// NodeRefreshList contains a list of NodeRefresh
type NodeRefreshList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NodeRefresh `json:"items"`
}

func init() {
	SchemeBuilder.Register(&NodeRefresh{}, &NodeRefreshList{})
}
