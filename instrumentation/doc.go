// Package instrumentation provides OpenTelemetry metrics and tracing
// for the relay. When disabled it falls back to no-op providers with
// zero overhead, so callers never need nil checks around recording.
package instrumentation
