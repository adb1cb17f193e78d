// Package server exposes the broker's HTTP surface: the four protocol
// endpoints consumed by the CLI plus the browser-facing callback pages.
// Routing matches by path suffix so the broker works identically whether
// it is mounted at the root of a long-running server or under an
// arbitrary CGI script path.
package server

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerops/go-token-broker/internal/config"
	"github.com/ledgerops/go-token-broker/internal/sealbox"
	"github.com/ledgerops/go-token-broker/providers"
	"github.com/ledgerops/go-token-broker/sessions"
)

type Server struct {
	config   config.Config
	store    *sessions.Store
	adapters providers.Registry
	box      *sealbox.Box

	handler         http.HandlerFunc
	successTemplate *template.Template
	failureTemplate *template.Template
	nowTime         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New constructs a broker Server. The store owns all mutable state; the
// server itself holds only read-only configuration and may be rebuilt for
// every request.
func New(cfg config.Config, store *sessions.Store, adapters providers.Registry, box *sealbox.Box, options ...Option) *Server {
	s := &Server{
		config:          cfg,
		store:           store,
		adapters:        adapters,
		box:             box,
		successTemplate: template.Must(template.New("success").Parse(successHTML)),
		failureTemplate: template.Must(template.New("failure").Parse(failureHTML)),
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.handler = ChainMiddleware(s.route, s.RecoverMiddleware, s.LoggingMiddleware)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler(w, r)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/v1/auth/start"):
		s.handleStart(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/callback/"):
		s.handleCallback(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/v1/auth/poll/"):
		http.NotFound(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/v1/auth/poll/"):
		s.handlePoll(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/v1/token/refresh"):
		s.handleRefresh(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/healthz"):
		s.handleHealthz(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
