package instrumentation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		inst, err := New(Config{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if inst.config.ServiceName != "smart-relay" {
			t.Errorf("ServiceName = %q, want smart-relay", inst.config.ServiceName)
		}
		if inst.config.ServiceVersion != DefaultServiceVersion {
			t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
		}
		if inst.Metrics() == nil {
			t.Error("Metrics() should not be nil")
		}
		if inst.MeterProvider() == nil || inst.TracerProvider() == nil {
			t.Error("providers should be initialized")
		}
	})

	t.Run("custom service identity", func(t *testing.T) {
		inst, err := New(Config{ServiceName: "relay-test", ServiceVersion: "1.2.3"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if inst.config.ServiceName != "relay-test" {
			t.Errorf("ServiceName = %q", inst.config.ServiceName)
		}
	})
}

func TestInstrumentation_Scopes(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Meter("server") == nil {
		t.Error("Meter() returned nil")
	}
	if inst.Tracer("http") == nil {
		t.Error("Tracer() returned nil")
	}
}

func TestInstrumentation_MetricsUsable(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against the noop providers must never panic.
	ctx := context.Background()
	m := inst.Metrics()
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrHTTPMethod, "GET")))
	m.HTTPRequestDuration.Record(ctx, 0.05)
	m.DiscoveryRequests.Add(ctx, 1)
	m.ExchangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrGrantType, "authorization_code")))
	m.StatesIssued.Add(ctx, 1)
	m.StatesRedeemed.Add(ctx, 1)
	m.StatesRejected.Add(ctx, 1)
	m.RateLimitExceeded.Add(ctx, 1)
}

func TestRegisterStateCountCallback(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.RegisterStateCountCallback(func() int64 { return 7 }); err != nil {
		t.Errorf("RegisterStateCountCallback() error = %v", err)
	}
	if err := inst.RegisterStateCountCallback(nil); err == nil {
		t.Error("nil callback should be rejected")
	}
}

func TestShutdown(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Idempotent: the second call is a no-op.
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestSpanHelpers_NilSafe(t *testing.T) {
	// All helpers must tolerate a nil span (tracing disabled).
	RecordError(nil, context.Canceled)
	SetSpanSuccess(nil)
	SetSpanAttributes(nil, attribute.String(AttrIssuer, "https://fhir.example"))
	AddHTTPAttributes(nil, "GET", "/smart/config", 200)
	AddExchangeAttributes(nil, "authorization_code", true, true)
}
