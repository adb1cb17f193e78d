package server

import (
	"net/http"

	"github.com/ledgerops/go-token-broker/providers"
	"github.com/rs/zerolog/log"
)

type refreshRequest struct {
	Provider     string `json:"provider"`
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh exchanges a refresh token for a fresh envelope. No session
// state is involved: the caller already holds the token, the broker only
// contributes the client credentials the CLI never sees.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSONBody(r.Body, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	provider, err := providers.Parse(req.Provider)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	if req.RefreshToken == "" {
		respondJSONError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if !s.allow(w, r, "refresh:"+clientIP(r), s.config.RefreshLimit) {
		return
	}

	adapter, ok := s.adapters.Get(provider)
	if !ok {
		respondJSONError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	env, err := adapter.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("token refresh failed")
		respondJSONError(w, http.StatusBadGateway, "token refresh failed")
		return
	}
	env.Provider = string(provider)

	respondJSON(w, http.StatusOK, env)
}
