package observability

import (
	"context"

	"osscprep/internal/config"

	autosdk "go.opentelemetry.io/auto/sdk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// SetupObservability initializes tracing, metrics, and logging for a service.
// Disabled signals come back nil, except the logger which is a no-op.
func SetupObservability(cfg *config.Config, serviceName string) (result0 trace.TracerProvider, result1 *metric.MeterProvider, result2 *Logger, err error) {
	otelCfg := &cfg.OpenTelemetry
	if serviceName != "" {
		otelCfg.ServiceName = serviceName
	}

	logger := NewServiceLogger(cfg)

	var tp trace.TracerProvider
	if otelCfg.EnableTracing {
		if otelCfg.UseAutoSDK {
			tp = autosdk.TracerProvider()
			logger.Info(context.Background(), "Tracing enabled with Auto SDK", map[string]interface{}{"service_name": otelCfg.ServiceName})
		} else {
			sdkProvider, err := InitStandardTracing(otelCfg)
			if err != nil {
				return nil, nil, logger, err
			}
			tp = sdkProvider
			logger.Info(context.Background(), "Tracing enabled with standard SDK", map[string]interface{}{"service_name": otelCfg.ServiceName})
		}
		otel.SetTracerProvider(tp)

		if err := InitTracing(otelCfg); err != nil {
			return nil, nil, logger, err
		}
		InitGlobalTracer()
	}

	var mp *metric.MeterProvider
	if otelCfg.EnableMetrics {
		mp, err = InitMetrics(otelCfg)
		if err != nil {
			return tp, nil, logger, err
		}
		otel.SetMeterProvider(mp)
	}

	return tp, mp, logger, nil
}
