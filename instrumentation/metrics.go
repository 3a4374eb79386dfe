package instrumentation

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the relay's metric instruments
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Relay flow
	DiscoveryRequests metric.Int64Counter
	ExchangesTotal    metric.Int64Counter

	// State registry
	StatesIssued   metric.Int64Counter
	StatesRedeemed metric.Int64Counter
	StatesRejected metric.Int64Counter
	StatesActive   metric.Int64ObservableGauge

	// Security
	RateLimitExceeded metric.Int64Counter
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	stateMeter := inst.Meter("statestore")
	securityMeter := inst.Meter("security")

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total HTTP requests handled by the relay"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.DiscoveryRequests, err = serverMeter.Int64Counter(
		"smart_discovery_requests_total",
		metric.WithDescription("SMART configuration discovery attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.ExchangesTotal, err = serverMeter.Int64Counter(
		"token_exchanges_total",
		metric.WithDescription("Token exchange attempts by grant type and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.StatesIssued, err = stateMeter.Int64Counter(
		"states_issued_total",
		metric.WithDescription("State bindings minted on discovery"),
	)
	if err != nil {
		return nil, err
	}

	m.StatesRedeemed, err = stateMeter.Int64Counter(
		"states_redeemed_total",
		metric.WithDescription("State bindings consumed by token exchanges"),
	)
	if err != nil {
		return nil, err
	}

	m.StatesRejected, err = stateMeter.Int64Counter(
		"states_rejected_total",
		metric.WithDescription("Exchanges rejected for unknown, expired, or replayed state"),
	)
	if err != nil {
		return nil, err
	}

	m.StatesActive, err = stateMeter.Int64ObservableGauge(
		"states_active",
		metric.WithDescription("Live state bindings in the registry"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"rate_limit_exceeded_total",
		metric.WithDescription("Requests rejected by per-IP rate limiting"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
