// Package server exposes the parse pipeline over HTTP: request decoding
// and validation, API-key resolution, quota admission, and status mapping.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/parse"
	"github.com/Domusgpt/parserator-sub000/internal/usage"
)

// Config holds HTTP listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns listener defaults. Write timeout leaves headroom
// for both LLM stages plus response encoding.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server wires the parse service, usage governor, and key resolver behind
// the HTTP API.
type Server struct {
	parser   *parse.Service
	governor *usage.Governor
	resolver KeyResolver
	validate *validator.Validate
	http     *http.Server
}

// New creates a Server. A nil resolver treats every caller as anonymous.
func New(cfg Config, parser *parse.Service, governor *usage.Governor, resolver KeyResolver) *Server {
	s := &Server{
		parser:   parser,
		governor: governor,
		resolver: resolver,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/parse", s.handleParse)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// subjectFor resolves the caller's identity. An unknown or malformed key is
// an auth failure; no key at all degrades to anonymous, keyed by client IP.
func (s *Server) subjectFor(r *http.Request) (Subject, error) {
	key := apiKeyFrom(r)
	if key == "" || s.resolver == nil {
		return anonymousSubject(r), nil
	}
	return s.resolver.Resolve(r.Context(), key)
}
