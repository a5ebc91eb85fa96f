// Package drain empties a node of evictable workloads: cordon, evict with
// bounded retries, wait for completion, and always uncordon afterwards.
package drain

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stevenplatt/k8s-controller/internal/cluster"
)

const (
	// DefaultMaxEvictionAttempts bounds retries of a PDB-rejected eviction.
	DefaultMaxEvictionAttempts = 5

	// DefaultEvictionRetryDelay is the base delay between eviction retries.
	// The actual delay is the base multiplied by the attempt count.
	DefaultEvictionRetryDelay = 30 * time.Second

	// DefaultTimeout is the maximum time to wait for a node to become
	// empty after evictions are issued.
	DefaultTimeout = 5 * time.Minute

	defaultPollInterval = 2 * time.Second
)

// Reporter receives one message per major drain step so the caller can
// record conditions without the executor knowing about status objects.
type Reporter func(message string)

// Executor drains one node at a time through a NodeGateway.
type Executor struct {
	Gateway cluster.NodeGateway

	// OperatorNamespace and OperatorPodLabels identify the controller's
	// own pod, which is never evicted.
	OperatorNamespace string
	OperatorPodLabels map[string]string

	// MaxEvictionAttempts, EvictionRetryDelay and Timeout override the
	// package defaults when non-zero.
	MaxEvictionAttempts int
	EvictionRetryDelay  time.Duration
	Timeout             time.Duration
	PollInterval        time.Duration

	// GracePeriod overrides each pod's termination grace period when set.
	GracePeriod *int64
}

func (e *Executor) maxAttempts() int {
	if e.MaxEvictionAttempts > 0 {
		return e.MaxEvictionAttempts
	}
	return DefaultMaxEvictionAttempts
}

func (e *Executor) retryDelay() time.Duration {
	if e.EvictionRetryDelay > 0 {
		return e.EvictionRetryDelay
	}
	return DefaultEvictionRetryDelay
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

func (e *Executor) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return defaultPollInterval
}

// Drain cordons the node, evicts its workloads and waits for them to be
// gone. The node is uncordoned before returning regardless of outcome, so
// a failed drain never leaves a node stuck unschedulable. Any returned
// error is fatal for this node; transient eviction rejections are retried
// internally.
func (e *Executor) Drain(ctx context.Context, nodeName string, report Reporter) (drainErr error) {
	logger := log.FromContext(ctx)

	if err := e.Gateway.Cordon(ctx, nodeName); err != nil {
		drainFailures.Inc()
		return fmt.Errorf("cordon node %s: %w", nodeName, err)
	}
	report(fmt.Sprintf("Cordoned node %s", nodeName))

	defer func() {
		if err := e.Gateway.Uncordon(ctx, nodeName); err != nil {
			logger.Error(err, "Failed to uncordon node after drain", "node", nodeName)
			report(fmt.Sprintf("Failed to uncordon node %s: %v", nodeName, err))
			if drainErr == nil {
				drainErr = fmt.Errorf("uncordon node %s: %w", nodeName, err)
			}
		} else {
			report(fmt.Sprintf("Uncordoned node %s", nodeName))
		}
		if drainErr != nil {
			drainFailures.Inc()
		}
	}()

	pods, err := e.evictablePods(ctx, nodeName)
	if err != nil {
		drainErr = fmt.Errorf("list pods on node %s: %w", nodeName, err)
		return drainErr
	}
	report(fmt.Sprintf("Targeting %d pods for eviction on node %s", len(pods), nodeName))

	if len(pods) == 0 {
		// Already empty; draining an empty node is a no-op success.
		report(fmt.Sprintf("Node %s drained successfully", nodeName))
		return nil
	}

	for i := range pods {
		if err := e.evictWithRetry(ctx, &pods[i]); err != nil {
			drainErr = err
			report(fmt.Sprintf("Drain of node %s failed: %v", nodeName, err))
			return drainErr
		}
	}

	if err := e.waitForEmpty(ctx, nodeName); err != nil {
		drainErr = err
		report(fmt.Sprintf("Drain of node %s failed: %v", nodeName, err))
		return drainErr
	}

	report(fmt.Sprintf("Node %s drained successfully", nodeName))
	return nil
}

// evictablePods lists the pods that must leave the node: everything except
// daemon-owned pods, terminating pods and the operator's own pod.
func (e *Executor) evictablePods(ctx context.Context, nodeName string) ([]corev1.Pod, error) {
	pods, err := e.Gateway.ListPods(ctx, nodeName)
	if err != nil {
		return nil, err
	}

	var evictable []corev1.Pod
	for i := range pods {
		pod := &pods[i]
		if pod.DeletionTimestamp != nil {
			continue
		}
		if cluster.IsDaemonPod(pod) {
			continue
		}
		if e.isOperatorPod(pod) {
			continue
		}
		evictable = append(evictable, *pod)
	}
	return evictable, nil
}

func (e *Executor) isOperatorPod(pod *corev1.Pod) bool {
	if e.OperatorNamespace == "" || pod.Namespace != e.OperatorNamespace {
		return false
	}
	if len(e.OperatorPodLabels) == 0 {
		return false
	}
	for k, v := range e.OperatorPodLabels {
		if pod.Labels[k] != v {
			return false
		}
	}
	return true
}

// evictWithRetry issues the eviction, retrying PDB rejections with a delay
// that grows with the attempt count. The attempt counter is logged so
// exhaustion is observable, not implicit.
func (e *Executor) evictWithRetry(ctx context.Context, pod *corev1.Pod) error {
	logger := log.FromContext(ctx)
	maxAttempts := e.maxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		evictionsIssued.Inc()
		err := e.Gateway.Evict(ctx, pod, e.GracePeriod)
		if err == nil || cluster.IsGone(err) {
			return nil
		}
		if !cluster.IsEvictionRejected(err) {
			return fmt.Errorf("evict pod %s/%s: %w", pod.Namespace, pod.Name, err)
		}

		logger.Info("Eviction rejected by disruption budget, will retry",
			"pod", pod.Namespace+"/"+pod.Name, "attempt", attempt, "maxAttempts", maxAttempts)
		evictionRetries.Inc()

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, e.retryDelay()*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("eviction of pod %s/%s still rejected after %d attempts",
		pod.Namespace, pod.Name, maxAttempts)
}

// waitForEmpty polls until no evictable pods remain or the timeout budget
// is exhausted.
func (e *Executor) waitForEmpty(ctx context.Context, nodeName string) error {
	deadline := time.Now().Add(e.timeout())
	for {
		pods, err := e.evictablePods(ctx, nodeName)
		if err != nil {
			return fmt.Errorf("list pods on node %s: %w", nodeName, err)
		}
		if len(pods) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			names := make([]string, 0, len(pods))
			for i := range pods {
				names = append(names, pods[i].Namespace+"/"+pods[i].Name)
			}
			return fmt.Errorf("drain of node %s timed out, pods remaining: %s",
				nodeName, strings.Join(names, ", "))
		}
		if err := sleep(ctx, e.pollInterval()); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
