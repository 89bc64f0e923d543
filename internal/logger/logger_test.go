package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "debug", Format: format, Output: buf, ServiceName: "nutrilens-test"})
	return l, buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestContextFieldsPropagate(t *testing.T) {
	l, buf := newBufferLogger(t, "json")

	ctx := l.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetUserID(ctx, "user-1")
	ctx = SetMealID(ctx, "meal-1")

	CtxInfo(ctx, "Meal %s committed", "meal-1")

	line := decodeLine(t, buf)
	for key, want := range map[string]string{
		"message":      "Meal meal-1 committed",
		"level":        "info",
		"service":      "nutrilens-test",
		FieldRequestID: "req-1",
		FieldUserID:    "user-1",
		FieldMealID:    "meal-1",
	} {
		if got := line[key]; got != want {
			t.Errorf("field %q = %v, want %q", key, got, want)
		}
	}
	if GetRequestID(ctx) != "req-1" {
		t.Errorf("GetRequestID = %q, want req-1", GetRequestID(ctx))
	}
}

func TestEntryMetricFields(t *testing.T) {
	l, buf := newBufferLogger(t, "json")
	ctx := SetComponent(l.WithContext(context.Background()), "importer")

	With(Fields{FieldFoodCount: 2}).WithCount(5).WithDuration(time.Now()).Info(ctx, "Imported batch")

	line := decodeLine(t, buf)
	if line[FieldComponent] != "importer" {
		t.Errorf("component = %v, want importer", line[FieldComponent])
	}
	if line[FieldCount] != float64(5) || line[FieldFoodCount] != float64(2) {
		t.Errorf("count/food_count = %v/%v, want 5/2", line[FieldCount], line[FieldFoodCount])
	}
	if _, ok := line[FieldDurationMs]; !ok {
		t.Error("expected duration_ms field")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != Default() {
		t.Error("expected default logger for a bare context")
	}
	var unset context.Context
	if FromContext(unset) != Default() {
		t.Error("expected default logger for a nil context")
	}
}

func TestTextFormatAndLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "warn", Format: "text", Output: buf, ServiceName: "svc"})

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "service=svc") {
		t.Errorf("unexpected text output: %q", out)
	}
}
