// Package observability wires tracing, metrics and structured logging for
// the question sourcing service. Log entries carry the active trace and span
// ids so they can be joined with traces in the backend.
package observability

import (
	"context"
	"os"

	"osscprep/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps the zap logger with OpenTelemetry context support
type Logger struct {
	*zap.Logger
}

// NewLogger creates an info-level logger from the telemetry settings alone.
func NewLogger(cfg *config.OpenTelemetryConfig) *Logger {
	return NewLoggerWithLevel(cfg, zap.InfoLevel)
}

// NewLoggerWithLevel creates a logger writing to stdout and, when an
// endpoint is configured, to the OTLP log exporter.
func NewLoggerWithLevel(cfg *config.OpenTelemetryConfig, level zapcore.Level) *Logger {
	return newLogger(cfg, nil, level)
}

// NewServiceLogger builds the process logger from the full configuration.
// It honours logging.level and adds a rotating file when logging.file is set.
func NewServiceLogger(cfg *config.Config) *Logger {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zap.InfoLevel
	}
	return newLogger(&cfg.OpenTelemetry, &cfg.Logging, level)
}

func newLogger(cfg *config.OpenTelemetryConfig, logCfg *config.LoggingConfig, level zapcore.Level) *Logger {
	if cfg == nil || !cfg.EnableLogging {
		return &Logger{Logger: zap.NewNop()}
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.StacktraceKey = "stacktrace"

	if os.Getenv("ENV") == "development" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		zapLogger = zap.NewExample()
	}

	cores := []zapcore.Core{zapLogger.Core()}

	if logCfg != nil && logCfg.File != "" {
		cores = append(cores, newFileCore(zapConfig.EncoderConfig, logCfg, level))
		zapLogger.Info("File logging enabled", zap.String("file", logCfg.File))
	}

	if cfg.Endpoint != "" {
		if otelCore, err := newOTLPCore(cfg); err != nil {
			zapLogger.Error("Failed to set up OTLP logging", zap.Error(err), zap.String("endpoint", cfg.Endpoint))
		} else {
			cores = append(cores, otelCore)
			zapLogger.Info("OTLP logging configured", zap.String("endpoint", cfg.Endpoint), zap.String("protocol", cfg.Protocol))
		}
	}

	if len(cores) > 1 {
		zapLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	}

	return &Logger{Logger: zapLogger}
}

// newFileCore writes JSON entries to a size-rotated file.
func newFileCore(encCfg zapcore.EncoderConfig, logCfg *config.LoggingConfig, level zapcore.Level) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   logCfg.File,
		MaxSize:    logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAgeDays,
		Compress:   logCfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level)
}

func newOTLPCore(cfg *config.OpenTelemetryConfig) (zapcore.Core, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	exporter, err := otlploggrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	provider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter)),
		log.WithResource(res),
	)
	return otelzap.NewCore(cfg.ServiceName, otelzap.WithLoggerProvider(provider)), nil
}

// Debug logs a debug message with context
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.DebugLevel, msg, fields...)
}

// Info logs an info message with context
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.InfoLevel, msg, fields...)
}

// Warn logs a warning message with context
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logWithContext(ctx, zap.WarnLevel, msg, fields...)
}

// Error logs an error message with context
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	allFields := mergeFields(fields...)
	if err != nil {
		allFields["error"] = err.Error()
	}
	l.logWithContext(ctx, zap.ErrorLevel, msg, allFields)
}

func (l *Logger) logWithContext(ctx context.Context, level zapcore.Level, msg string, fields ...map[string]interface{}) {
	if !l.Core().Enabled(level) {
		return
	}

	allFields := mergeFields(fields...)

	if spanContext := trace.SpanFromContext(ctx).SpanContext(); spanContext.IsValid() {
		allFields["trace_id"] = spanContext.TraceID().String()
		allFields["span_id"] = spanContext.SpanID().String()
	}

	zapFields := make([]zap.Field, 0, len(allFields))
	for k, v := range allFields {
		zapFields = append(zapFields, zap.Any(k, v))
	}

	switch level {
	case zap.DebugLevel:
		l.Logger.Debug(msg, zapFields...)
	case zap.WarnLevel:
		l.Logger.Warn(msg, zapFields...)
	case zap.ErrorLevel:
		l.Logger.Error(msg, zapFields...)
	default:
		l.Logger.Info(msg, zapFields...)
	}
}

// mergeFields copies the given maps into a fresh map, later maps winning.
func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
