package logger

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with verification-specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey     ContextKey = "request_id"
	AgentIDKey       ContextKey = "agent_id"
	ApplicationIDKey ContextKey = "application_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "nop"}
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with request scoped values and the active
// span, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok && agentID != "" {
		fields = append(fields, zap.String("agent_id", agentID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if applicationID, ok := ctx.Value(ApplicationIDKey).(string); ok && applicationID != "" {
		fields = append(fields, zap.String("application_id", applicationID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithInvestigation returns a logger with investigation context
func (l *Logger) WithInvestigation(applicationID string) *Logger {
	return &Logger{
		Logger:      l.With(zap.String("application_id", applicationID)),
		serviceName: l.serviceName,
	}
}

// WithSection returns a logger scoped to one investigation section
func (l *Logger) WithSection(applicationID, sectionID string) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("application_id", applicationID),
			zap.String("section_id", sectionID),
		),
		serviceName: l.serviceName,
	}
}

// InvestigationInitialized logs investigation creation
func (l *Logger) InvestigationInitialized(applicationID string, sections, fields int) {
	l.Info("investigation initialized",
		zap.String("application_id", applicationID),
		zap.Int("sections", sections),
		zap.Int("fields", fields),
	)
}

// FieldTransition logs an applied field transition
func (l *Logger) FieldTransition(op, fieldID, from, to string) {
	l.Info("field transition",
		zap.String("operation", op),
		zap.String("field_id", fieldID),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// TransitionRejected logs an operation that was refused
func (l *Logger) TransitionRejected(op, fieldID string, reason error) {
	l.Info("operation rejected",
		zap.String("operation", op),
		zap.String("field_id", fieldID),
		zap.NamedError("reason", reason),
	)
}

// DifferenceDetected logs a classified difference
func (l *Logger) DifferenceDetected(fieldID, severity string, difference *float64, auto bool) {
	fields := []zap.Field{
		zap.String("field_id", fieldID),
		zap.String("severity", severity),
		zap.Bool("auto_detected", auto),
	}
	if difference != nil {
		fields = append(fields, zap.Float64("difference_pct", *difference))
	}
	l.Warn("difference detected", fields...)
}

// InvestigationFinalized logs finalization
func (l *Logger) InvestigationFinalized(applicationID, risk, action string) {
	l.Info("investigation finalized",
		zap.String("application_id", applicationID),
		zap.String("overall_risk", risk),
		zap.String("recommended_action", action),
	)
}

// FlushCompleted logs a successful store write
func (l *Logger) FlushCompleted(investigations, bytes int, durationMs int64) {
	l.Debug("store flushed",
		zap.Int("investigations", investigations),
		zap.Int("bytes", bytes),
		zap.Int64("duration_ms", durationMs),
	)
}

// FlushFailed logs a failed store write
func (l *Logger) FlushFailed(err error, durationMs int64) {
	l.Error("store flush failed",
		zap.Error(err),
		zap.Int64("duration_ms", durationMs),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// DurationField creates a duration field
func DurationField(name string, d time.Duration) zap.Field {
	return zap.Duration(name, d)
}

// StringField creates a string field
func StringField(key, value string) zap.Field {
	return zap.String(key, value)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Float64Field creates a float64 field
func Float64Field(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// BoolField creates a bool field
func BoolField(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}
