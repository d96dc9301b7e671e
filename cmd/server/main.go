// Copyright 2026 The Devbench Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devbench/console/internal/audit"
	"github.com/devbench/console/internal/authz"
	"github.com/devbench/console/internal/backend"
	"github.com/devbench/console/internal/config"
	"github.com/devbench/console/internal/federation"
	"github.com/devbench/console/internal/gate"
	"github.com/devbench/console/internal/observability/logger"
	"github.com/devbench/console/internal/observability/metrics"
	"github.com/devbench/console/internal/observability/tracing"
	"github.com/devbench/console/internal/session"
	"github.com/devbench/console/internal/store/postgres"
	transportHTTP "github.com/devbench/console/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting devbench console")

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter and the console's counters
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	var instruments *metrics.Instruments
	if meter != nil {
		if instruments, err = meter.Instruments(); err != nil {
			slog.Error("failed to create instruments", logger.Error(err))
		}
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	auditLogger := audit.NewSlogLogger()

	// The permission matrix compiles from static declarations; a malformed
	// table must never reach traffic.
	matrix, err := authz.Compile(authz.DefaultTables())
	if err != nil {
		slog.Error("failed to compile permission matrix", logger.Error(err))
		os.Exit(1)
	}

	// Session store over postgres-backed revocation records
	sessionRepo := postgres.NewSessionRepository(db)
	sessions, err := session.NewStore(sessionRepo, []byte(cfg.Session.Secret), cfg.Session.TTL, auditLogger)
	if err != nil {
		slog.Error("failed to initialize session store", logger.Error(err))
		os.Exit(1)
	}

	// Backend identity authority
	backendClient := backend.NewHTTPClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	})

	// Federation: sign-in flow, provider registry, signed state
	flow := federation.NewFlow(backendClient, auditLogger, cfg.Backend.Timeout)
	providers := federation.NewRegistry(federation.RegistryConfig{
		PublicURL:       cfg.Server.PublicURL,
		Google:          federation.ProviderCredentials(cfg.OAuth.Google),
		GitHub:          federation.ProviderCredentials(cfg.OAuth.GitHub),
		Microsoft:       federation.ProviderCredentials(cfg.OAuth.Microsoft),
		MicrosoftTenant: cfg.OAuth.MicrosoftTenant,
	})
	if len(providers.Names()) == 0 {
		slog.Warn("no oauth providers configured; only credential and sso sign-in available")
	}
	stateCodec, err := federation.NewStateCodec([]byte(cfg.Session.Secret), cfg.OAuth.StateTTL)
	if err != nil {
		slog.Error("failed to initialize state codec", logger.Error(err))
		os.Exit(1)
	}

	// Route admission
	accessGate := gate.New(gate.Config{
		PublicExact:        cfg.Routes.PublicExact,
		PublicPrefixes:     cfg.Routes.PublicPrefixes,
		VerificationExempt: cfg.Routes.VerificationExempt,
	})

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		sessions,
		matrix,
		backendClient,
		flow,
		providers,
		stateCodec,
		accessGate,
		auditLogger,
		instruments,
		transportHTTP.CookieConfig{
			Name:     cfg.Session.CookieName,
			Domain:   cfg.Session.CookieDomain,
			Path:     cfg.Session.CookiePath,
			Secure:   cfg.Session.CookieSecure,
			HTTPOnly: cfg.Session.CookieHTTPOnly,
			SameSite: transportHTTP.ParseSameSite(cfg.Session.CookieSameSite),
		},
		transportHTTP.RouteConfig{
			SignInPath:       cfg.Routes.SignInPath,
			VerificationPath: cfg.Routes.VerificationPath,
		},
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start session purge goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to purge expired sessions", logger.Error(err))
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "purged expired sessions", "count", n)
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}
