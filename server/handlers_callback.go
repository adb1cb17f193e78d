package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"github.com/ledgerops/go-token-broker/providers"
	"github.com/rs/zerolog/log"
)

// handleCallback terminates the provider redirect. It is the only endpoint
// an end user's browser reaches directly, so the response is always an
// HTML page and never carries token material.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := providers.Parse(providerFromCallbackPath(r.URL.Path))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if errStr := q.Get("error"); errStr != "" {
		s.renderFailure(w, fmt.Sprintf("%s: %s", errStr, q.Get("error_description")))
		return
	}
	state := q.Get("state")
	if state == "" {
		s.renderFailure(w, "missing state parameter")
		return
	}

	sess, err := s.store.LookupByState(r.Context(), string(provider), state)
	if err != nil {
		if brokererrors.Is(err, brokererrors.ErrNotFound) {
			s.renderFailure(w, "unknown or expired session")
			return
		}
		log.Error().Err(err).Msg("lookup session failed")
		s.renderFailure(w, "internal error")
		return
	}
	if sess.Expired(s.nowTime()) {
		s.renderFailure(w, "session expired")
		return
	}

	adapter, ok := s.adapters.Get(provider)
	if !ok {
		s.renderFailure(w, "unsupported provider")
		return
	}

	cb := providers.Callback{
		CodeVerifier: sess.CodeVerifier.String,
		RealmID:      q.Get("realmId"),
	}
	env, err := adapter.Exchange(r.Context(), q.Get("code"), cb)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("token exchange failed")
		s.renderFailure(w, "token exchange failed")
		return
	}
	env.Provider = string(provider)

	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("marshal envelope failed")
		s.renderFailure(w, "internal serialisation error")
		return
	}
	sealed, err := s.box.Seal(payload)
	if err != nil {
		log.Error().Err(err).Msg("seal envelope failed")
		s.renderFailure(w, "internal serialisation error")
		return
	}

	var realmID *string
	if env.RealmID != "" {
		realmID = &env.RealmID
	}
	if err := s.store.MarkReady(r.Context(), sess.ID, sealed, realmID); err != nil {
		// Zero rows affected means a concurrent delivery already finalized
		// this session; for the user that is success, not an error.
		if brokererrors.Is(err, brokererrors.ErrNotFound) {
			s.renderSuccess(w, string(provider))
			return
		}
		log.Error().Err(err).Msg("mark ready failed")
		s.renderFailure(w, "internal persistence error")
		return
	}

	s.renderSuccess(w, string(provider))
}

func (s *Server) renderSuccess(w http.ResponseWriter, provider string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.successTemplate.Execute(w, map[string]string{"Provider": provider}); err != nil {
		log.Error().Err(err).Msg("render success page failed")
	}
}

func (s *Server) renderFailure(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	if err := s.failureTemplate.Execute(w, map[string]string{"Message": msg}); err != nil {
		log.Error().Err(err).Msg("render failure page failed")
	}
}
