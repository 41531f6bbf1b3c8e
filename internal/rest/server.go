// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest implements the loopback-bound HTTP JSON API: every response
// is wrapped in the {ok,data}/{ok,error,code} envelope, every non-idempotent
// request must carry a CSRF token minted by this process and pass an Origin
// check, and every response carries a fixed set of hardening headers. There
// is no bearer-token or session auth layer — the server is only ever meant
// to bind to 127.0.0.1, and the CSRF/Origin pair exists to stop a malicious
// web page from driving it through a victim's browser.
package rest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhahn/jwtworkbench/internal/vault"
	"github.com/jhahn/jwtworkbench/pkg/adapters/logger"
	"github.com/jhahn/jwtworkbench/pkg/adapters/metrics"
)

// Server is the loopback HTTP API server.
type Server struct {
	server    *http.Server
	service   *vault.Service
	logger    logger.Logger
	version   string
	addr      string
	csrfToken string
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the address to bind to. It must resolve to loopback; the
	// server refuses to start otherwise since the CSRF/Origin defenses
	// assume no network attacker can reach it.
	Addr string

	Service *vault.Service
	Logger  logger.Logger
	Version string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server bound to a loopback address.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8643"
	}
	host, _, splitErr := net.SplitHostPort(cfg.Addr)
	if splitErr != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.Addr, splitErr)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("listen address %q is not a loopback address", cfg.Addr)
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{Level: logger.LevelInfo})
	}

	token, err := newCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	s := &Server{
		service:   cfg.Service,
		logger:    log,
		version:   cfg.Version,
		addr:      cfg.Addr,
		csrfToken: token,
	}

	router := s.setupRouter()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(SecurityHeadersMiddleware)
	r.Use(OriginMiddleware)
	r.Use(s.CSRFMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthHandler)
		r.Get("/csrf", s.csrfHandler)

		r.Post("/jwt/encode", s.encodeHandler)
		r.Post("/jwt/verify", s.verifyHandler)
		r.Post("/jwt/inspect", s.decodeHandler)

		r.Get("/vault/projects", s.listProjectsHandler)
		r.Post("/vault/projects", s.createProjectHandler)
		r.Post("/vault/projects/{id}/default-key", s.setDefaultKeyHandler)
		r.Delete("/vault/projects/{id}", s.deleteProjectHandler)

		r.Get("/vault/keys", s.listKeysHandler)
		r.Post("/vault/keys", s.importKeyHandler)
		r.Post("/vault/keys/generate", s.generateKeyHandler)
		r.Delete("/vault/keys/{id}", s.deleteKeyHandler)

		r.Get("/vault/tokens", s.listTokensHandler)
		r.Post("/vault/tokens", s.createTokenHandler)
		r.Post("/vault/tokens/{id}/material", s.tokenMaterialHandler)
		r.Delete("/vault/tokens/{id}", s.deleteTokenHandler)

		r.Post("/vault/export", s.exportBundleHandler)
		r.Post("/vault/import", s.importBundleHandler)
	})

	if prom, ok := s.service.Metrics.(*metrics.PrometheusMetrics); ok {
		r.Handle("/metrics", promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
	}

	return r
}

// Start starts the HTTP server; it blocks until Stop is called or the
// server fails.
func (s *Server) Start() error {
	s.logger.Info("starting workbench http api", logger.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping workbench http api")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.addr
}
