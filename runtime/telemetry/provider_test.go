package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer(nil))
	assert.NotNil(t, Tracer(noop.NewTracerProvider()))
}

func TestSetupPropagation(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)

	SetupPropagation()

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "X-Amzn-Trace-Id")
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	origProp := otel.GetTextMapPropagator()
	origTP := otel.GetTracerProvider()
	defer func() {
		otel.SetTextMapPropagator(origProp)
		otel.SetTracerProvider(origTP)
	}()

	shutdown, err := Setup(context.Background(), "", "hkweather")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, origTP, otel.GetTracerProvider())
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(t.Context(), "http://localhost:0/v1/traces", "test-service")
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(t.Context()) }()

	var _ trace.TracerProvider = tp
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	origProp := otel.GetTextMapPropagator()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTextMapPropagator(origProp)
		otel.SetTracerProvider(origTP)
	})

	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	SetupPropagation()
	return rec
}

func TestStartAndEndSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "hkweather.invoke")
	EndSpan(span, errors.New("process died"))
	_, ok := StartSpan(context.Background(), "hkweather.route")
	EndSpan(ok, nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "hkweather.invoke", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestEnvPropagation(t *testing.T) {
	withRecorder(t)

	ctx, span := StartSpan(context.Background(), "hkweather.session")
	defer span.End()

	env := InjectEnv(ctx)
	require.Contains(t, env, "TRACEPARENT")
	assert.Contains(t, env["TRACEPARENT"], span.SpanContext().TraceID().String())

	environ := []string{"PATH=/usr/bin", "TRACEPARENT=" + env["TRACEPARENT"]}
	child := ExtractEnv(context.Background(), environ)
	remote := trace.SpanContextFromContext(child)
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())

	assert.Empty(t, InjectEnv(context.Background()))
	bare := context.Background()
	assert.Equal(t, bare, ExtractEnv(bare, []string{"HOME=/root"}))
}
