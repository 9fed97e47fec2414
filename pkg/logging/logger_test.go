package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

func newJSONLogger(buf *bytes.Buffer, level Level) Logger {
	return NewLogger(&Config{
		Level:       level,
		ServiceName: "test-service",
		Environment: "testing",
		JSONFormat:  true,
		Output:      buf,
	})
}

func decodeLine(t *testing.T, line []byte) map[string]interface{} {
	t.Helper()
	var output map[string]interface{}
	if err := json.Unmarshal(line, &output); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", line, err)
	}
	return output
}

func TestNewLogger_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.ServiceName != "fwdata" {
		t.Errorf("expected default service name to be 'fwdata', got %s", cfg.ServiceName)
	}
	if cfg.JSONFormat {
		t.Error("expected default JSONFormat to be false")
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	if NewLogger(nil) == nil {
		t.Error("expected non-nil logger with nil config")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelDebug)

	log.Info("household deleted", F("household_identifier", "abc"))

	output := decodeLine(t, buf.Bytes())
	if output["message"] != "household deleted" {
		t.Errorf("unexpected message: %v", output["message"])
	}
	if output["service_name"] != "test-service" {
		t.Errorf("unexpected service_name: %v", output["service_name"])
	}
	if output["environment"] != "testing" {
		t.Errorf("unexpected environment: %v", output["environment"])
	}
	if output["household_identifier"] != "abc" {
		t.Errorf("unexpected field value: %v", output["household_identifier"])
	}
	if output["level"] != "info" {
		t.Errorf("unexpected level: %v", output["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelWarn)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept too")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelDebug).With(F("component", "food_group_proxy"))

	log.Debug("children loaded", F("count", 3))

	output := decodeLine(t, buf.Bytes())
	if output["component"] != "food_group_proxy" {
		t.Errorf("expected component field, got %v", output["component"])
	}
	if output["count"] != float64(3) {
		t.Errorf("expected count 3, got %v", output["count"])
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 1},
		SpanID:     trace.SpanID{0x01, 0x02, 3},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	newJSONLogger(buf, LevelInfo).WithContext(ctx).Info("traced")

	output := decodeLine(t, buf.Bytes())
	if output["trace_id"] != sc.TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", sc.TraceID(), output["trace_id"])
	}
	if output["span_id"] != sc.SpanID().String() {
		t.Errorf("expected span_id %s, got %v", sc.SpanID(), output["span_id"])
	}
}

func TestLogger_WithContext_NoSpan(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelInfo)
	if log.WithContext(context.Background()) != log {
		t.Error("expected the logger itself without a span in the context")
	}

	log.WithContext(context.Background()).Info("untraced")
	output := decodeLine(t, buf.Bytes())
	if _, ok := output["trace_id"]; ok {
		t.Errorf("expected no trace_id, got %v", output["trace_id"])
	}
}

func TestLogger_FieldTypes(t *testing.T) {
	buf := &bytes.Buffer{}
	id := uuid.MustParse("6f1c3a4e-0b8e-4d7b-9d55-0c1d2e3f4a5b")

	newJSONLogger(buf, LevelInfo).Info("types",
		F("identifier", id),
		F("active", true),
		F("elapsed", 2*time.Second),
		F("ratio", 0.5),
		F("rows", int64(7)),
		Err(errors.New("boom")),
	)

	output := decodeLine(t, buf.Bytes())
	if output["identifier"] != id.String() {
		t.Errorf("expected uuid rendered as string, got %v", output["identifier"])
	}
	if output["active"] != true {
		t.Errorf("expected bool field, got %v", output["active"])
	}
	if output["error"] != "boom" {
		t.Errorf("expected error field, got %v", output["error"])
	}
	if output["rows"] != float64(7) {
		t.Errorf("expected rows 7, got %v", output["rows"])
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, ServiceName: "cli", Output: buf})

	log.Info("console message")

	if !strings.Contains(buf.String(), "console message") {
		t.Errorf("expected console output to contain message, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		" warn ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("ignored", F("k", "v"))
	if log.With(F("a", 1)) != log {
		t.Error("nop logger With should return itself")
	}
	if log.WithContext(context.Background()) != log {
		t.Error("nop logger WithContext should return itself")
	}
}
