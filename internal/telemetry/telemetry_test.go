package telemetry

import (
	"testing"
	"time"
)

func TestSanitize_DropsUnlistedKeys(t *testing.T) {
	out := Sanitize(map[string]interface{}{
		"tool":     "read",
		"prompt":   "should be dropped",
		"sessionId": "abc-123",
		"durationMs": int64(42),
	})
	if out["prompt"] != nil {
		t.Fatalf("expected unlisted key to be dropped, got %+v", out)
	}
	if out["tool"] != "read" || out["sessionId"] != "abc-123" || out["durationMs"] != int64(42) {
		t.Fatalf("expected allow-listed keys to survive, got %+v", out)
	}
}

func TestSanitize_DropsLongStrings(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	out := Sanitize(map[string]interface{}{"tool": string(long)})
	if _, ok := out["tool"]; ok {
		t.Fatalf("expected oversized string value to be dropped")
	}
}

func TestNoopHooks_NeverPanics(t *testing.T) {
	var h NoopHooks
	h.EmitEvent(nil, "x", time.Time{}, StatusOK, 0, nil)
	if h.TelemetrySettings("f", nil) != nil {
		t.Fatalf("expected nil settings from no-op hooks")
	}
}

func TestRecordingHooks_QueryFiltersByNameAndSince(t *testing.T) {
	h := NewRecordingHooks(10)
	t0 := time.Now()
	h.EmitEvent(nil, "turn.step", t0, StatusOK, 1, map[string]interface{}{"tool": "read"})
	h.EmitEvent(nil, "tool.call", t0.Add(time.Second), StatusOK, 2, nil)

	all := h.Query("", time.Time{})
	if len(all) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(all))
	}

	onlyTurn := h.Query("turn", time.Time{})
	if len(onlyTurn) != 1 || onlyTurn[0].Name != "turn.step" {
		t.Fatalf("expected substring filter to match only turn.step, got %+v", onlyTurn)
	}

	sinceLater := h.Query("", t0.Add(500*time.Millisecond))
	if len(sinceLater) != 1 || sinceLater[0].Name != "tool.call" {
		t.Fatalf("expected since filter to exclude the earlier event, got %+v", sinceLater)
	}
}

func TestRecordingHooks_WrapsAroundCapacity(t *testing.T) {
	h := NewRecordingHooks(2)
	base := time.Now()
	h.EmitEvent(nil, "a", base, StatusOK, 0, nil)
	h.EmitEvent(nil, "b", base.Add(time.Second), StatusOK, 0, nil)
	h.EmitEvent(nil, "c", base.Add(2*time.Second), StatusOK, 0, nil)

	got := h.Query("", time.Time{})
	if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("expected ring buffer to retain the last 2 events in order, got %+v", got)
	}
}
