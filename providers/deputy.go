package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/ledgerops/go-token-broker/internal/config"
	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	"golang.org/x/oauth2"
)

// DeputyAdapter implements the Deputy dialect: no PKCE, the client secret
// travels in the form body, and the token response carries the per-org
// endpoint subdomain required for all subsequent API calls.
type DeputyAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewDeputyAdapter(cfg config.ProviderConfig, client *http.Client) *DeputyAdapter {
	return &DeputyAdapter{cfg: cfg, client: client}
}

func (d *DeputyAdapter) Name() Provider { return Deputy }

func (d *DeputyAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.cfg.ClientID,
		ClientSecret: d.cfg.ClientSecret,
		RedirectURL:  d.cfg.RedirectURL,
		Scopes:       d.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.cfg.AuthURL,
			TokenURL:  d.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (d *DeputyAdapter) StartAuth(state string) (string, string, error) {
	return d.oauthConfig().AuthCodeURL(state), "", nil
}

func (d *DeputyAdapter) Exchange(ctx context.Context, code string, _ Callback) (envelope.Envelope, error) {
	if code == "" {
		return envelope.Envelope{}, fmt.Errorf("deputy exchange: missing code: %w", brokererrors.ErrValidation)
	}
	ctx = withHTTPClient(ctx, d.client)

	tok, err := d.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return envelope.Envelope{}, upstreamError("deputy exchange", err)
	}
	return d.envelopeFor(tok), nil
}

func (d *DeputyAdapter) Refresh(ctx context.Context, refreshToken string) (envelope.Envelope, error) {
	ctx = withHTTPClient(ctx, d.client)

	tok, err := d.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return envelope.Envelope{}, upstreamError("deputy refresh", err)
	}
	return d.envelopeFor(tok), nil
}

func (d *DeputyAdapter) envelopeFor(tok *oauth2.Token) envelope.Envelope {
	env := envelopeFromToken(Deputy, tok)
	if endpoint, ok := tok.Extra("endpoint").(string); ok {
		env.Endpoint = endpoint
	}
	return env
}
