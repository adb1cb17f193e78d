package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/ledgerops/go-token-broker/internal/config"
	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// XeroAdapter implements the Xero dialect: PKCE is mandatory, the client
// secret rides HTTP basic auth only when one is configured (public-client
// setups omit it entirely), and authorized organisations are discovered
// through a follow-up /connections call.
type XeroAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewXeroAdapter(cfg config.ProviderConfig, client *http.Client) *XeroAdapter {
	return &XeroAdapter{cfg: cfg, client: client}
}

func (x *XeroAdapter) Name() Provider { return Xero }

func (x *XeroAdapter) oauthConfig() *oauth2.Config {
	authStyle := oauth2.AuthStyleInParams
	if x.cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     x.cfg.ClientID,
		ClientSecret: x.cfg.ClientSecret,
		RedirectURL:  x.cfg.RedirectURL,
		Scopes:       x.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   x.cfg.AuthURL,
			TokenURL:  x.cfg.TokenURL,
			AuthStyle: authStyle,
		},
	}
}

// StartAuth generates a fresh PKCE verifier and embeds its S256 challenge
// in the authorize URL. The verifier must be stored server-side and
// replayed at exchange time.
func (x *XeroAdapter) StartAuth(state string) (string, string, error) {
	verifier := oauth2.GenerateVerifier()
	authURL := x.oauthConfig().AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return authURL, verifier, nil
}

func (x *XeroAdapter) Exchange(ctx context.Context, code string, cb Callback) (envelope.Envelope, error) {
	if code == "" {
		return envelope.Envelope{}, fmt.Errorf("xero exchange: missing code: %w", brokererrors.ErrValidation)
	}
	ctx = withHTTPClient(ctx, x.client)

	var opts []oauth2.AuthCodeOption
	if cb.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(cb.CodeVerifier))
	}
	tok, err := x.oauthConfig().Exchange(ctx, code, opts...)
	if err != nil {
		return envelope.Envelope{}, upstreamError("xero exchange", err)
	}

	env := envelopeFromToken(Xero, tok)
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		env.IDToken = idToken
		if email := identityEmail(idToken); email != "" {
			log.Info().Str("provider", string(Xero)).Str("email", email).Msg("authorized user identified")
		}
	}

	x.attachTenants(ctx, tok, &env)
	return env, nil
}

func (x *XeroAdapter) Refresh(ctx context.Context, refreshToken string) (envelope.Envelope, error) {
	ctx = withHTTPClient(ctx, x.client)

	tok, err := x.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return envelope.Envelope{}, upstreamError("xero refresh", err)
	}

	env := envelopeFromToken(Xero, tok)
	x.attachTenants(ctx, tok, &env)
	return env, nil
}

// attachTenants enriches the envelope with discovered organisations.
// Discovery failure is non-fatal: the freshly issued tokens matter more
// than the metadata.
func (x *XeroAdapter) attachTenants(ctx context.Context, tok *oauth2.Token, env *envelope.Envelope) {
	tenants, err := x.fetchConnections(ctx, tok)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(Xero)).Msg("connections discovery failed, continuing without tenants")
		return
	}
	env.Tenants = tenants
}

func (x *XeroAdapter) fetchConnections(ctx context.Context, tok *oauth2.Token) ([]envelope.Tenant, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.cfg.APIBaseURL+"/connections", nil)
	if err != nil {
		return nil, brokererrors.Wrapf(err, "[fetchConnections] build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[fetchConnections] %v: %w", err, brokererrors.ErrUpstream)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodyLog))
		return nil, fmt.Errorf("[fetchConnections] status %d: %s: %w", resp.StatusCode, body, brokererrors.ErrUpstream)
	}
	var tenants []envelope.Tenant
	if err := json.NewDecoder(resp.Body).Decode(&tenants); err != nil {
		return nil, brokererrors.Wrapf(err, "[fetchConnections] decode response")
	}
	return tenants, nil
}

// identityEmail pulls the email claim out of an id_token without verifying
// its signature. The value is used for logging only, never authorization.
func identityEmail(idToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	email, _ := claims["email"].(string)
	return email
}
