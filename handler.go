package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/medbridge/smart-relay/instrumentation"
	"github.com/medbridge/smart-relay/security"
	"github.com/medbridge/smart-relay/server"
	"github.com/medbridge/smart-relay/smart"
	"github.com/medbridge/smart-relay/statestore/memory"
)

// maxRequestBodySize bounds the JSON body accepted on the token
// endpoint.
const maxRequestBodySize = 64 << 10 // 64 KiB

// Handler is the relay's HTTP boundary. It owns request plumbing
// (rate limiting, CORS, security headers, error shaping) and delegates
// the flows to the core server.
type Handler struct {
	server  *server.Server
	store   *memory.Store
	limiter *security.RateLimiter
	config  *Config
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHandler wires up a complete relay from configuration: discovery
// client, in-memory state store, core server, auditor, and rate
// limiter.
func NewHandler(config *Config) (*Handler, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	config.applyDefaults()

	var smartOpts []smart.Option
	if config.AllowInsecureIssuers {
		smartOpts = append(smartOpts, smart.WithAllowInsecureIssuers())
	}
	discovery := smart.NewClient(config.HTTPClient, config.Logger, smartOpts...)

	store := memory.NewWithInterval(config.CleanupInterval)
	store.SetLogger(config.Logger)

	srv, err := server.New(discovery, store, &server.Config{
		ClientID:             config.ClientID,
		ClientSecret:         config.ClientSecret,
		StateTTL:             config.StateTTL,
		AllowInsecureIssuers: config.AllowInsecureIssuers,
	}, config.HTTPClient, config.Logger)
	if err != nil {
		store.Stop()
		return nil, err
	}

	srv.SetAuditor(security.NewAuditor(config.Logger, config.EnableAuditLogging))

	if config.Instrumentation != nil {
		srv.SetInstrumentation(config.Instrumentation)
		store.SetInstrumentation(config.Instrumentation)
	}

	h := &Handler{
		server: srv,
		store:  store,
		config: config,
		logger: config.Logger,
	}

	if config.RateLimit.Rate > 0 {
		h.limiter = security.NewRateLimiter(config.RateLimit.Rate, config.RateLimit.Burst, config.Logger)
	}
	if config.Instrumentation != nil {
		h.tracer = config.Instrumentation.Tracer("http")
	}

	return h, nil
}

// NewHandlerWithServer creates a handler over an existing core server.
// The caller keeps ownership of the server's store lifecycle.
func NewHandlerWithServer(srv *server.Server, config *Config, logger *slog.Logger) *Handler {
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()
	if logger == nil {
		logger = config.Logger
	}
	return &Handler{
		server: srv,
		config: config,
		logger: logger,
	}
}

// Close stops the handler's background goroutines (state cleanup,
// rate limiter cleanup).
func (h *Handler) Close() {
	if h.store != nil {
		h.store.Stop()
	}
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// RegisterRoutes registers the relay endpoints on a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/smart/config", h.ServeSmartConfig)
	mux.HandleFunc("/smart/token", h.ServeToken)
	mux.HandleFunc("/healthz", h.ServeHealth)
}

// Routes returns the full relay handler with request ID propagation
// applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return security.RequestIDMiddleware(mux)
}

// ServeSmartConfig handles GET /smart/config?iss={issuerUrl}: fetches
// the issuer's SMART configuration and returns it with a freshly
// minted state field injected.
func (h *Handler) ServeSmartConfig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "ServeSmartConfig")
	defer h.endSpan(span)

	security.SetSecurityHeaders(w, h.config.ExternalURL)
	h.setCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		h.recordHTTP(ctx, r, "/smart/config", http.StatusMethodNotAllowed, start)
		return
	}

	clientIP := h.clientIP(r)
	if h.rateLimited(ctx, w, r, clientIP) {
		h.recordHTTP(ctx, r, "/smart/config", http.StatusTooManyRequests, start)
		return
	}

	doc, err := h.server.DiscoverConfiguration(ctx, r.URL.Query().Get("iss"), clientIP)
	if err != nil {
		status := h.writeFlowError(w, err)
		instrumentation.RecordError(span, err)
		h.recordHTTP(ctx, r, "/smart/config", status, start)
		return
	}

	h.writeJSON(w, http.StatusOK, doc)
	instrumentation.SetSpanSuccess(span)
	h.recordHTTP(ctx, r, "/smart/config", http.StatusOK, start)
}

// ServeToken handles POST /smart/token: consumes the state binding and
// relays the code-for-token (or refresh) exchange to the issuer's
// token endpoint, forwarding the confidential client credentials.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "ServeToken")
	defer h.endSpan(span)

	security.SetSecurityHeaders(w, h.config.ExternalURL)
	h.setCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		h.recordHTTP(ctx, r, "/smart/token", http.StatusMethodNotAllowed, start)
		return
	}

	clientIP := h.clientIP(r)
	if h.rateLimited(ctx, w, r, clientIP) {
		h.recordHTTP(ctx, r, "/smart/token", http.StatusTooManyRequests, start)
		return
	}

	var req server.ExchangeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		h.recordHTTP(ctx, r, "/smart/token", http.StatusBadRequest, start)
		return
	}

	body, err := h.server.Exchange(ctx, &req, clientIP)
	if err != nil {
		status := h.writeFlowError(w, err)
		instrumentation.RecordError(span, err)
		h.recordHTTP(ctx, r, "/smart/token", status, start)
		return
	}

	// Upstream token response passes through verbatim; its schema is
	// owned by the authorization server.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	instrumentation.SetSpanSuccess(span)
	h.recordHTTP(ctx, r, "/smart/token", http.StatusOK, start)
}

// ServeHealth handles GET /healthz
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.config.RateLimit.TrustProxy, h.config.RateLimit.TrustedProxyCount)
}

// rateLimited enforces the per-IP limit. Returns true when the request
// was rejected and a response already written.
func (h *Handler) rateLimited(ctx context.Context, w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	if inst := h.server.Instrumentation(); inst != nil {
		inst.Metrics().RateLimitExceeded.Add(ctx, 1)
	}
	h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	return true
}

// setCORSHeaders applies the configured origin policy. The browser
// front-end runs on a different origin than the relay in every real
// deployment.
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allowed := ""
	for _, o := range h.config.CORS.AllowedOrigins {
		if o == "*" {
			allowed = "*"
			break
		}
		if o == origin {
			allowed = origin
			break
		}
	}
	if allowed == "" {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+security.RequestIDHeader)
	if allowed != "*" {
		w.Header().Add("Vary", "Origin")
	}
}

// writeFlowError maps a flow error to its HTTP response and returns
// the status written.
func (h *Handler) writeFlowError(w http.ResponseWriter, err error) int {
	var ferr *server.FlowError
	if errors.As(err, &ferr) {
		h.writeError(w, ferr.Status, ferr.Detail)
		return ferr.Status
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return http.StatusBadRequest
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, ErrorResponse{Detail: detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := r.Context()
	if h.tracer == nil {
		return ctx, nil
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func (h *Handler) recordHTTP(ctx context.Context, r *http.Request, endpoint string, status int, start time.Time) {
	inst := h.server.Instrumentation()
	if inst == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(instrumentation.AttrHTTPMethod, r.Method),
		attribute.String(instrumentation.AttrHTTPEndpoint, endpoint),
		attribute.Int(instrumentation.AttrHTTPStatusCode, status),
	)
	inst.Metrics().HTTPRequestsTotal.Add(ctx, 1, attrs)
	inst.Metrics().HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
