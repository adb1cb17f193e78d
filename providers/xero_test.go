package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ledgerops/go-token-broker/internal/config"
	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"github.com/ledgerops/go-token-broker/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func xeroTestConfig(tokenURL, apiBaseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ClientID:    "xero-client",
		RedirectURL: "https://broker.example.com/callback/xero",
		Scopes:      []string{"offline_access", "accounting.transactions"},
		AuthURL:     "https://login.xero.com/identity/connect/authorize",
		TokenURL:    tokenURL,
		APIBaseURL:  apiBaseURL,
	}
}

func signedIDToken(t *testing.T, email string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": email}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestXeroStartAuthEmbedsS256Challenge(t *testing.T) {
	adapter := providers.NewXeroAdapter(xeroTestConfig("https://identity.xero.com/connect/token", "https://api.xero.com"), http.DefaultClient)

	authURL, verifier, err := adapter.StartAuth("state-123")
	require.NoError(t, err)
	require.NotEmpty(t, verifier)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "xero-client", q.Get("client_id"))
	assert.Equal(t, "https://broker.example.com/callback/xero", q.Get("redirect_uri"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))

	// Each start mints a fresh verifier.
	_, second, err := adapter.StartAuth("state-456")
	require.NoError(t, err)
	assert.NotEqual(t, verifier, second)
}

func TestXeroExchangeSendsVerifierAndDiscoversTenants(t *testing.T) {
	var tokenForm url.Values
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		tokenForm = r.PostForm
		_, _, hasBasicAuth := r.BasicAuth()
		assert.False(t, hasBasicAuth, "public client must not send basic auth")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "xero-access",
			"refresh_token": "xero-refresh",
			"expires_in":    1800,
			"token_type":    "Bearer",
			"scope":         "offline_access accounting.transactions",
			"id_token":      signedIDToken(t, "jane@example.com"),
		})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connections", r.URL.Path)
		assert.Equal(t, "Bearer xero-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "conn-1", "tenantId": "tenant-1", "tenantType": "ORGANISATION", "tenantName": "Acme Pty Ltd"},
		})
	}))
	defer apiSrv.Close()

	adapter := providers.NewXeroAdapter(xeroTestConfig(tokenSrv.URL, apiSrv.URL), http.DefaultClient)

	env, err := adapter.Exchange(context.Background(), "auth-code", providers.Callback{CodeVerifier: "stored-verifier"})
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", tokenForm.Get("grant_type"))
	assert.Equal(t, "auth-code", tokenForm.Get("code"))
	assert.Equal(t, "stored-verifier", tokenForm.Get("code_verifier"))
	assert.Equal(t, "xero-client", tokenForm.Get("client_id"))

	assert.Equal(t, "xero", env.Provider)
	assert.Equal(t, "xero-access", env.AccessToken)
	assert.Equal(t, "xero-refresh", env.RefreshToken)
	assert.NotEmpty(t, env.IDToken)
	assert.WithinDuration(t, time.Now().Add(1800*time.Second), env.ExpiresAt, 10*time.Second)
	require.Len(t, env.Tenants, 1)
	assert.Equal(t, "Acme Pty Ltd", env.Tenants[0].TenantName)
}

func TestXeroExchangeUsesBasicAuthWhenSecretConfigured(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "xero-client", user)
		assert.Equal(t, "xero-secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a", "token_type": "Bearer", "expires_in": 1800})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer apiSrv.Close()

	cfg := xeroTestConfig(tokenSrv.URL, apiSrv.URL)
	cfg.ClientSecret = "xero-secret"
	adapter := providers.NewXeroAdapter(cfg, http.DefaultClient)

	_, err := adapter.Exchange(context.Background(), "auth-code", providers.Callback{CodeVerifier: "v"})
	require.NoError(t, err)
}

func TestXeroExchangeSurvivesConnectionsFailure(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a", "refresh_token": "r", "token_type": "Bearer", "expires_in": 1800})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream maintenance", http.StatusServiceUnavailable)
	}))
	defer apiSrv.Close()

	adapter := providers.NewXeroAdapter(xeroTestConfig(tokenSrv.URL, apiSrv.URL), http.DefaultClient)

	env, err := adapter.Exchange(context.Background(), "auth-code", providers.Callback{CodeVerifier: "v"})
	require.NoError(t, err, "token availability outranks metadata enrichment")
	assert.Equal(t, "a", env.AccessToken)
	assert.Empty(t, env.Tenants)
}

func TestXeroExchangeRejectedWithoutVerifier(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "a", "token_type": "Bearer"})
	}))
	defer tokenSrv.Close()

	adapter := providers.NewXeroAdapter(xeroTestConfig(tokenSrv.URL, tokenSrv.URL), http.DefaultClient)

	_, err := adapter.Exchange(context.Background(), "auth-code", providers.Callback{})
	assert.ErrorIs(t, err, brokererrors.ErrUpstream)
}

func TestXeroExchangeMissingCode(t *testing.T) {
	adapter := providers.NewXeroAdapter(xeroTestConfig("https://identity.xero.com/connect/token", "https://api.xero.com"), http.DefaultClient)

	_, err := adapter.Exchange(context.Background(), "", providers.Callback{CodeVerifier: "v"})
	assert.ErrorIs(t, err, brokererrors.ErrValidation)
}

func TestXeroRefreshRotatesToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access", "refresh_token": "new-refresh", "token_type": "Bearer", "expires_in": 1800,
		})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer apiSrv.Close()

	adapter := providers.NewXeroAdapter(xeroTestConfig(tokenSrv.URL, apiSrv.URL), http.DefaultClient)

	env, err := adapter.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", env.RefreshToken)
	assert.NotEqual(t, "old-refresh", env.RefreshToken)
}
