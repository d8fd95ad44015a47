package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "voice-auth"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil || p.Shutdown == nil {
			t.Fatalf("providers incomplete: %+v", p)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("no-op shutdown: %v", err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint      string
		insecure      bool
		wantTarget    string
		wantPlaintext bool
		wantErr       bool
	}{
		{"localhost:4317", false, "localhost:4317", true, false},
		{"http://collector:4317/v1/traces", false, "collector:4317", true, false},
		{"https://collector:4317", false, "collector:4317", false, false},
		{"https://collector:4317", true, "collector:4317", true, false},
		{"http://collector:4317?x=1", false, "collector:4317", true, false},
		{"http://", false, "", false, true},
		{"http://[invalid", false, "", false, true},
	}
	for _, tt := range tests {
		target, plaintext, err := parseEndpoint(tt.endpoint, tt.insecure)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseEndpoint(%q) should fail", tt.endpoint)
			}
			continue
		}
		if err != nil || target != tt.wantTarget || plaintext != tt.wantPlaintext {
			t.Errorf("parseEndpoint(%q) = %q, %v, %v; want %q, %v", tt.endpoint, target, plaintext, err, tt.wantTarget, tt.wantPlaintext)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), Options{Endpoint: "http://", ServiceName: "voice-auth"}); err == nil {
		t.Error("expected error for endpoint without host")
	}
}

func TestSetGlobal(t *testing.T) {
	p, err := NewProviders(context.Background(), Options{ServiceName: "voice-auth"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	orig := otel.GetTracerProvider()
	defer otel.SetTracerProvider(orig)

	p.SetGlobal()
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok || tp != p.TracerProvider {
		t.Errorf("global tracer provider = %T, want the configured one", otel.GetTracerProvider())
	}
	if len(otel.GetTextMapPropagator().Fields()) == 0 {
		t.Error("propagator fields empty after SetGlobal")
	}
	(&Providers{}).SetGlobal()
}
