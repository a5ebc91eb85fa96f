package controller

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
)

// appendCondition records one entry in the append-only cycle log. Entries
// are never rewritten or deleted; every transition and drain step leaves a
// trace that survives the cycle.
func appendCondition(status *stablev1alpha1.NodeRefreshStatus, phase stablev1alpha1.RefreshPhase, message string) {
	status.Conditions = append(status.Conditions, stablev1alpha1.RefreshCondition{
		Timestamp: metav1.Now(),
		Phase:     phase,
		Message:   message,
	})
}

// transition moves the cycle to a new phase and logs the reason.
func transition(status *stablev1alpha1.NodeRefreshStatus, phase stablev1alpha1.RefreshPhase, message string) {
	status.Phase = phase
	appendCondition(status, phase, message)
}

// lastConditionTime returns the timestamp of the most recent condition
// recorded in the given phase.
func lastConditionTime(status *stablev1alpha1.NodeRefreshStatus, phase stablev1alpha1.RefreshPhase) (time.Time, bool) {
	for i := len(status.Conditions) - 1; i >= 0; i-- {
		if status.Conditions[i].Phase == phase {
			return status.Conditions[i].Timestamp.Time, true
		}
	}
	return time.Time{}, false
}

// removeNode drops a node from the remaining working set.
func removeNode(nodes []string, name string) []string {
	out := nodes[:0]
	for _, n := range nodes {
		if n != name {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
