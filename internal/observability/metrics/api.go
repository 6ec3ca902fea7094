// Package metrics turns client events into StatsD counters and timings.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/iamdevroyal/blocpoint-client/internal/observability/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// RequestMetric captures one transmitted HTTP attempt.
type RequestMetric struct {
	Method   string
	Path     string
	Status   int
	Attempt  int
	Duration time.Duration
	Err      error
}

// EmitRequest emits per-attempt request metrics. Status 0 means no response was received.
func EmitRequest(sink statsd.Sink, in RequestMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"method":  in.Method,
		"path":    in.Path,
		"status":  strconv.Itoa(in.Status),
		"attempt": strconv.Itoa(in.Attempt),
		"result":  resultOf(in.Err),
	}
	addErrorClass(tags, in.Err)

	sink.Count("api.request", 1, tags)
	if in.Duration > 0 {
		sink.Timing("api.request.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRefresh emits the outcome of a shared token refresh.
func EmitRefresh(sink statsd.Sink, duration time.Duration, err error) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": resultOf(err)}
	addErrorClass(tags, err)

	sink.Count("session.refresh", 1, tags)
	if duration > 0 {
		sink.Timing("session.refresh.duration", duration, CloneTags(tags))
	}
}

// EmitExpired counts partial teardowns triggered by unrecoverable 401s.
func EmitExpired(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count("session.expired", 1, map[string]string{"reason": reason})
}

// EmitAuthOperation emits the outcome of an auth lifecycle operation (login, register, ...).
func EmitAuthOperation(sink statsd.Sink, operation string, duration time.Duration, err error) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": operation,
		"result":    resultOf(err),
	}
	addErrorClass(tags, err)

	sink.Count("auth.operation", 1, tags)
	if duration > 0 {
		sink.Timing("auth.operation.duration", duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

func addErrorClass(tags map[string]string, err error) {
	if err == nil {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}
