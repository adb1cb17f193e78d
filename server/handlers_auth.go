package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/ledgerops/go-token-broker/internal/config"
	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"github.com/ledgerops/go-token-broker/providers"
	"github.com/ledgerops/go-token-broker/sessions"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Profile  string `json:"profile"`
	}
	if err := decodeJSONBody(r.Body, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	provider, err := providers.Parse(req.Provider)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "unsupported provider")
		return
	}
	if strings.TrimSpace(req.Profile) == "" {
		respondJSONError(w, http.StatusBadRequest, "profile is required")
		return
	}

	if !s.allow(w, r, "start:"+clientIP(r), s.config.StartLimit) {
		return
	}

	adapter, ok := s.adapters.Get(provider)
	if !ok {
		respondJSONError(w, http.StatusBadRequest, "unsupported provider")
		return
	}

	sessionID, err := randomToken(24)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "failed to allocate session")
		return
	}
	state, err := randomToken(32)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "failed to allocate state")
		return
	}

	authURL, codeVerifier, err := adapter.StartAuth(state)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("start auth failed")
		respondJSONError(w, http.StatusInternalServerError, "unable to start authorisation flow")
		return
	}

	now := s.nowTime()
	sess := sessions.Session{
		ID:        sessionID,
		Provider:  string(provider),
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if codeVerifier != "" {
		sess.CodeVerifier = sql.NullString{String: codeVerifier, Valid: true}
	}
	if err := s.store.InsertSession(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("insert session failed")
		respondJSONError(w, http.StatusInternalServerError, "unable to persist session")
		return
	}

	base := basePathForRequest(r, "/v1/auth/start")
	respondJSON(w, http.StatusOK, map[string]any{
		"auth_url": authURL,
		"poll_url": base + "/v1/auth/poll/" + sessionID,
		"session":  sessionID,
		"state":    state,
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	sessionID := lastPathComponent(r.URL.Path)
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}

	if !s.allow(w, r, "poll:"+sessionID, s.config.PollLimit) {
		return
	}

	sess, err := s.store.LoadForPoll(r.Context(), sessionID)
	if err != nil {
		if brokererrors.Is(err, brokererrors.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Error().Err(err).Msg("load session failed")
		respondJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Expiry is checked lazily; the reap happens here, on access.
	if sess.Expired(s.nowTime()) {
		if err := s.store.Delete(r.Context(), sessionID); err != nil {
			log.Error().Err(err).Msg("delete expired session failed")
		}
		respondJSONError(w, http.StatusGone, "session expired")
		return
	}

	if !sess.Ready() {
		if s.config.PollTimeout > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.config.PollTimeout/time.Second)))
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}

	plain, err := s.box.Open(sess.Result)
	if err != nil {
		log.Error().Err(err).Msg("open session result failed")
		respondJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var env envelope.Envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		log.Error().Err(err).Msg("unmarshal session result failed")
		respondJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Exactly-once delivery: the row is gone before the envelope leaves.
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		log.Error().Err(err).Msg("delete session failed")
	}
	respondJSON(w, http.StatusOK, env)
}

// allow enforces a fixed-window rate limit, writing the rejection itself.
// Returns false when the request must not proceed.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, key string, limit config.RateLimit) bool {
	err := s.store.IncrementRateLimit(r.Context(), key, limit.Limit, limit.Window)
	if err == nil {
		return true
	}
	if brokererrors.Is(err, brokererrors.ErrRateLimited) {
		respondJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
		return false
	}
	log.Error().Err(err).Str("key", key).Msg("rate limit check failed")
	respondJSONError(w, http.StatusInternalServerError, "internal error")
	return false
}
