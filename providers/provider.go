// Package providers implements the per-provider OAuth2 dialects behind a
// uniform adapter interface. Each adapter owns its endpoint URLs, grant
// quirks, and secret-usage policy; handlers never branch on provider
// details themselves.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/ledgerops/go-token-broker/internal/config"
	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"golang.org/x/oauth2"
)

// Provider identifies one of the supported upstream providers.
type Provider string

const (
	Xero   Provider = "xero"
	Deputy Provider = "deputy"
	QBO    Provider = "qbo"
)

// Parse normalises and validates a client-supplied provider name.
func Parse(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case Xero:
		return Xero, nil
	case Deputy:
		return Deputy, nil
	case QBO:
		return QBO, nil
	default:
		return "", fmt.Errorf("unsupported provider %q: %w", raw, brokererrors.ErrValidation)
	}
}

// Callback carries the values recovered for a provider redirect: the PKCE
// verifier stored at start time and any query parameters the token
// endpoint itself does not know about.
type Callback struct {
	CodeVerifier string
	RealmID      string
}

// Adapter is the uniform surface every provider implements.
//
// StartAuth returns the browser authorize URL for a state value, plus a
// PKCE code verifier when the provider's dialect requires one (empty
// otherwise). Exchange swaps an authorization code for a token envelope.
// Refresh rotates a refresh token; the returned envelope always carries
// the only refresh token that remains valid.
type Adapter interface {
	Name() Provider
	StartAuth(state string) (authURL string, codeVerifier string, err error)
	Exchange(ctx context.Context, code string, cb Callback) (envelope.Envelope, error)
	Refresh(ctx context.Context, refreshToken string) (envelope.Envelope, error)
}

// Registry maps provider names to their adapters.
type Registry map[Provider]Adapter

// NewRegistry builds adapters for all supported providers from config.
// The HTTP client bounds every outbound token/connections call.
func NewRegistry(cfg config.Config, client *http.Client) Registry {
	return Registry{
		Xero:   NewXeroAdapter(cfg.Xero, client),
		Deputy: NewDeputyAdapter(cfg.Deputy, client),
		QBO:    NewQBOAdapter(cfg.QBO, client),
	}
}

// Get returns the adapter for a provider.
func (r Registry) Get(p Provider) (Adapter, bool) {
	a, ok := r[p]
	return a, ok
}

const maxUpstreamBodyLog = 1024

// withHTTPClient pins the oauth2 transport to the adapter's bounded client.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// upstreamError maps oauth2 transport failures onto ErrUpstream, keeping a
// truncated copy of the upstream body for server-side logs. Secrets never
// appear in token-endpoint error bodies.
func upstreamError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if brokererrors.As(err, &rerr) {
		body := rerr.Body
		if len(body) > maxUpstreamBodyLog {
			body = body[:maxUpstreamBodyLog]
		}
		return fmt.Errorf("%s: status %d: %s: %w", op, rerr.Response.StatusCode, body, brokererrors.ErrUpstream)
	}
	return fmt.Errorf("%s: %v: %w", op, err, brokererrors.ErrUpstream)
}

// envelopeFromToken normalises the fields every provider dialect shares.
func envelopeFromToken(p Provider, tok *oauth2.Token) envelope.Envelope {
	env := envelope.Envelope{
		Provider:     string(p),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.Type(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		env.Scope = scope
	}
	return env
}
