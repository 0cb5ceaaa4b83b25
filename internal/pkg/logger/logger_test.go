package logger

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{Logger: zap.New(core), serviceName: "test"}, logs
}

func TestWithContextAddsRequestScopedFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, AgentIDKey, "agent-7")
	ctx = context.WithValue(ctx, ApplicationIDKey, "APP-1")

	log.WithContext(ctx).Info("hello")

	entry := logs.All()[0]
	fields := entry.ContextMap()
	want := map[string]string{
		"request_id":     "req-1",
		"agent_id":       "agent-7",
		"application_id": "APP-1",
		"trace_id":       "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id":        "00f067aa0ba902b7",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v, want %s", k, fields[k], v)
		}
	}
}

func TestWithContextSkipsMissingValues(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	log.WithContext(context.Background()).Info("bare")

	if n := len(logs.All()[0].Context); n != 0 {
		t.Fatalf("expected no context fields, got %d", n)
	}
}

func TestDomainHelpers(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)
	diff := -20.0

	sectionLog := log.WithSection("APP-1", "financial_analysis")
	sectionLog.FieldTransition("adjust", "monthly_income", "pending", "adjusted")
	sectionLog.DifferenceDetected("monthly_income", "high", &diff, false)
	sectionLog.TransitionRejected("confirm", "monthly_income", errors.New("field is locked"))
	log.FlushFailed(errors.New("disk full"), 12)

	if got := logs.FilterMessage("field transition").FilterField(zap.String("section_id", "financial_analysis")).Len(); got != 1 {
		t.Errorf("transition logs with section = %d", got)
	}
	diffs := logs.FilterMessage("difference detected").All()
	if len(diffs) != 1 || diffs[0].Level != zapcore.WarnLevel || diffs[0].ContextMap()["difference_pct"] != -20.0 {
		t.Errorf("difference log = %+v", diffs)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Errorf("flush failure should log at error level")
	}
}
