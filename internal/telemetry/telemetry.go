// Package telemetry implements the Observability Hooks from spec.md §4.6:
// emitEvent/telemetrySettings, best-effort and non-blocking, with
// pre-sanitized attributes so prompts/outputs never leak into spans or logs.
package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Status is the outcome recorded alongside an emitted event.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// attrAllowList names the only attribute keys emitEvent will forward, plus
// any key ending in "Id" (sessionId, turnId, stepId, requestId, ...).
var attrAllowList = map[string]bool{
	"tool":         true,
	"provider":     true,
	"model":        true,
	"step":         true,
	"durationMs":   true,
	"isError":      true,
	"kind":         true,
	"attempt":      true,
	"maxAttempts":  true,
}

// Hooks is consulted by the Turn Driver and Session Server. Emission never
// blocks the caller and never returns an error — a broken exporter must not
// affect turn execution.
type Hooks interface {
	EmitEvent(ctx context.Context, name string, at time.Time, status Status, durationMs int64, attributes map[string]interface{})
	TelemetrySettings(functionID string, metadata map[string]interface{}) map[string]interface{}
}

// Sanitize keeps only allow-listed keys (or keys ending in "Id") and only
// numeric/boolean/short-string values, per spec.md §4.6.
func Sanitize(attributes map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		if !attrAllowList[k] && !hasIDSuffix(k) {
			continue
		}
		switch val := v.(type) {
		case bool, int, int32, int64, float32, float64:
			out[k] = val
		case string:
			if len(val) <= 200 {
				out[k] = val
			}
		}
	}
	return out
}

func hasIDSuffix(k string) bool {
	return len(k) > 2 && k[len(k)-2:] == "Id"
}

// NoopHooks is the always-linked default: every call is a no-op.
type NoopHooks struct{}

func (NoopHooks) EmitEvent(context.Context, string, time.Time, Status, int64, map[string]interface{}) {
}

func (NoopHooks) TelemetrySettings(string, map[string]interface{}) map[string]interface{} {
	return nil
}

// Event is one recorded EmitEvent call, as kept by RecordingHooks.
type Event struct {
	Name       string                 `json:"name"`
	At         time.Time              `json:"at"`
	Status     Status                 `json:"status"`
	DurationMs int64                  `json:"durationMs"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// RecordingHooks is an in-process Hooks implementation that keeps the last
// N sanitized events in a ring buffer, queryable by observability_query
// (spec.md §4.4) without requiring a live exporter backend. It never
// blocks or fails the caller, same as NoopHooks — only the ring buffer
// bookkeeping differs.
type RecordingHooks struct {
	mu      sync.Mutex
	cap     int
	events  []Event
	next    int
	wrapped bool
}

// NewRecordingHooks returns hooks that retain up to capacity events. A
// non-positive capacity is treated as 1.
func NewRecordingHooks(capacity int) *RecordingHooks {
	if capacity <= 0 {
		capacity = 1
	}
	return &RecordingHooks{cap: capacity, events: make([]Event, capacity)}
}

func (h *RecordingHooks) EmitEvent(_ context.Context, name string, at time.Time, status Status, durationMs int64, attributes map[string]interface{}) {
	ev := Event{Name: name, At: at, Status: status, DurationMs: durationMs, Attributes: Sanitize(attributes)}
	h.mu.Lock()
	h.events[h.next] = ev
	h.next = (h.next + 1) % h.cap
	if h.next == 0 {
		h.wrapped = true
	}
	h.mu.Unlock()
}

func (h *RecordingHooks) TelemetrySettings(functionID string, metadata map[string]interface{}) map[string]interface{} {
	out := Sanitize(metadata)
	if out == nil {
		out = make(map[string]interface{}, 1)
	}
	out["functionId"] = functionID
	return out
}

// Query returns recorded events whose name contains substr (empty matches
// all) and whose At is at or after since, oldest first. Safe for
// concurrent use alongside EmitEvent.
func (h *RecordingHooks) Query(substr string, since time.Time) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ordered []Event
	if h.wrapped {
		ordered = append(ordered, h.events[h.next:]...)
		ordered = append(ordered, h.events[:h.next]...)
	} else {
		ordered = append(ordered, h.events[:h.next]...)
	}

	out := make([]Event, 0, len(ordered))
	for _, ev := range ordered {
		if ev.Name == "" {
			continue
		}
		if !since.IsZero() && ev.At.Before(since) {
			continue
		}
		if substr != "" && !strings.Contains(strings.ToLower(ev.Name), strings.ToLower(substr)) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
