// Package metrics emits the audit service's StatsD metrics with a consistent tag vocabulary.
package metrics

import (
	"time"

	obserrors "github.com/target/mmk-site-audit/internal/observability/errors"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultDegraded = "degraded"
	ResultTimeout  = "timeout"
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultNoop     = "noop"
)

// Lifecycle transitions tagged on audit.transition.
const (
	TransitionAdmitted = "admitted"
	TransitionStarted  = "started"
	TransitionComplete = "completed"
	TransitionFailed   = "failed"
)

// AuditMetric captures details about an audit lifecycle event for metric emission.
type AuditMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitAuditLifecycle emits audit.transition and, when a duration is known, audit.duration.
func EmitAuditLifecycle(sink statsd.Sink, in AuditMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("audit.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("audit.duration", in.Duration, CloneTags(tags))
	}
}

// CollaboratorMetric describes one finished collaborator call.
type CollaboratorMetric struct {
	Check    string
	Category string
	Result   string
	Duration time.Duration
}

// EmitCollaborator emits audit.collaborator as a counter and a timing.
func EmitCollaborator(sink statsd.Sink, in CollaboratorMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"check":    in.Check,
		"category": in.Category,
		"result":   in.Result,
	}
	sink.Count("audit.collaborator", 1, tags)
	if in.Duration > 0 {
		sink.Timing("audit.collaborator", in.Duration, CloneTags(tags))
	}
}

// EmitCache counts a result cache lookup.
func EmitCache(sink statsd.Sink, hit bool) {
	if sink == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	sink.Count("audit.cache", 1, map[string]string{"result": result})
}

// EmitQueueDepth reports how many admitted audits wait for a slot.
func EmitQueueDepth(sink statsd.Sink, running, queued int) {
	if sink == nil {
		return
	}
	sink.Gauge("audit.slots.running", float64(running), nil)
	sink.Gauge("audit.queue.depth", float64(queued), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
