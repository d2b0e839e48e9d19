package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// sampler picks a probabilistic sampler for rates in (0,1), const otherwise
func sampler(rate float64) *jaegercfg.SamplerConfig {
	if rate > 0 && rate < 1 {
		return &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeProbabilistic, Param: rate}
	}
	param := 1.0
	if rate <= 0 {
		param = 0
	}
	return &jaegercfg.SamplerConfig{Type: jaeger.SamplerTypeConst, Param: param}
}

// Init installs a Jaeger tracer for one component (api, worker) as the
// global tracer. Reporter errors go to logger. When tracing is disabled the
// global no-op tracer stays in place.
func Init(cfg config.TracingConfig, component string, logger *logging.Logger) (io.Closer, error) {
	if !cfg.Enabled {
		return nopCloser{}, nil
	}

	jc := jaegercfg.Configuration{
		ServiceName: fmt.Sprintf("%s-%s", cfg.ServiceName, component),
		Sampler:     sampler(cfg.SampleRate),
		Reporter:    &jaegercfg.ReporterConfig{CollectorEndpoint: cfg.Endpoint},
	}

	tracer, closer, err := jc.NewTracer(jaegercfg.Logger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

func StartSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, operationName)
}

// StartStage starts a child span for one summarization stage
func StartStage(ctx context.Context, jobID, stage string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "summarize."+stage,
		opentracing.Tag{Key: "job.id", Value: jobID},
		opentracing.Tag{Key: "stage", Value: stage},
	)
	ext.Component.Set(span, "vidsum")
	return span, ctx
}

func FinishSpan(span opentracing.Span) {
	if span != nil {
		span.Finish()
	}
}

// LogError flags the span as failed and records err
func LogError(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err)
}

func SetTag(span opentracing.Span, key string, value interface{}) {
	if span != nil {
		span.SetTag(key, value)
	}
}
