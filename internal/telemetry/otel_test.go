package telemetry

import (
	"testing"

	"github.com/vnmchuo/inference-gateway/config"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer_None(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := InitTracer("inference-gateway", &config.Config{OTELExporterType: "none"})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	shutdown()
	if otel.GetTracerProvider() != before {
		t.Errorf("Expected global provider to be untouched")
	}
}

func TestInitTracer_Stdout(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := InitTracer("inference-gateway", &config.Config{OTELExporterType: "stdout"})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	defer shutdown()
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("Expected SDK tracer provider, got %T", otel.GetTracerProvider())
	}
}
