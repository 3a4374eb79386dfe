// Command smart-relay runs the SMART-on-FHIR backend relay.
//
// The relay exposes two endpoints for a browser SMART app:
//
//	GET  /smart/config?iss={issuer}  discovery + state minting
//	POST /smart/token                state-bound token exchange
//
// Configuration comes from the environment; SMART_CLIENT_ID and
// SMART_CLIENT_SECRET identify the relay to the EHR's authorization
// server. Leaving the secret at its placeholder runs the relay as a
// public (PKCE-only) client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	relay "github.com/medbridge/smart-relay"
	"github.com/medbridge/smart-relay/instrumentation"
	"github.com/medbridge/smart-relay/server"
)

// version is set at build time via -ldflags
var version = "dev"

type envConfig struct {
	ClientID     string `env:"SMART_CLIENT_ID" envDefault:"REPLACE_WITH_CLIENT_ID"`
	ClientSecret string `env:"SMART_CLIENT_SECRET" envDefault:"REPLACE_WITH_CLIENT_SECRET"`
	Port         int    `env:"PORT" envDefault:"3001"`

	ExternalURL          string        `env:"SMART_RELAY_EXTERNAL_URL"`
	StateTTL             time.Duration `env:"SMART_RELAY_STATE_TTL" envDefault:"10m"`
	AllowInsecureIssuers bool          `env:"SMART_RELAY_ALLOW_INSECURE_ISSUERS"`
	AllowedOrigins       []string      `env:"SMART_RELAY_ALLOWED_ORIGINS" envSeparator:","`

	RateLimit  int  `env:"SMART_RELAY_RATE_LIMIT" envDefault:"10"`
	RateBurst  int  `env:"SMART_RELAY_RATE_BURST" envDefault:"20"`
	TrustProxy bool `env:"SMART_RELAY_TRUST_PROXY"`

	AuditLogging bool   `env:"SMART_RELAY_AUDIT_LOGGING" envDefault:"true"`
	Telemetry    bool   `env:"SMART_RELAY_TELEMETRY"`
	LogLevel     string `env:"SMART_RELAY_LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "smart-relay:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.ClientID == "REPLACE_WITH_CLIENT_ID" {
		logger.Warn("SMART_CLIENT_ID not set; exchanges will use the placeholder client ID")
	}
	if cfg.ClientSecret == server.SecretPlaceholder {
		logger.Info("No confidential client secret configured; running as a public (PKCE) client")
	}

	relayConfig := &relay.Config{
		ClientID:             cfg.ClientID,
		ClientSecret:         cfg.ClientSecret,
		ExternalURL:          cfg.ExternalURL,
		StateTTL:             cfg.StateTTL,
		AllowInsecureIssuers: cfg.AllowInsecureIssuers,
		RateLimit: relay.RateLimitConfig{
			Rate:       cfg.RateLimit,
			Burst:      cfg.RateBurst,
			TrustProxy: cfg.TrustProxy,
		},
		CORS: relay.CORSConfig{
			AllowedOrigins: cfg.AllowedOrigins,
		},
		EnableAuditLogging: cfg.AuditLogging,
		Logger:             logger,
	}

	if cfg.Telemetry {
		inst, err := instrumentation.New(instrumentation.Config{
			ServiceName:    "smart-relay",
			ServiceVersion: version,
			Enabled:        true,
		})
		if err != nil {
			return fmt.Errorf("init instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = inst.Shutdown(shutdownCtx)
		}()
		relayConfig.Instrumentation = inst
	}

	handler, err := relay.NewHandler(relayConfig)
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("SMART-on-FHIR relay listening",
			"addr", srv.Addr,
			"version", version,
			"state_ttl", cfg.StateTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
