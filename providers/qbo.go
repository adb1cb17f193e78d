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

// QBOAdapter implements the QuickBooks Online dialect: client credentials
// via HTTP basic auth at the token endpoint, and a realm (company) id that
// arrives only as a callback query parameter, which the token endpoint
// itself never sees.
type QBOAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewQBOAdapter(cfg config.ProviderConfig, client *http.Client) *QBOAdapter {
	return &QBOAdapter{cfg: cfg, client: client}
}

func (q *QBOAdapter) Name() Provider { return QBO }

func (q *QBOAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     q.cfg.ClientID,
		ClientSecret: q.cfg.ClientSecret,
		RedirectURL:  q.cfg.RedirectURL,
		Scopes:       q.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   q.cfg.AuthURL,
			TokenURL:  q.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (q *QBOAdapter) StartAuth(state string) (string, string, error) {
	return q.oauthConfig().AuthCodeURL(state), "", nil
}

func (q *QBOAdapter) Exchange(ctx context.Context, code string, cb Callback) (envelope.Envelope, error) {
	if code == "" {
		return envelope.Envelope{}, fmt.Errorf("qbo exchange: missing code: %w", brokererrors.ErrValidation)
	}
	ctx = withHTTPClient(ctx, q.client)

	tok, err := q.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return envelope.Envelope{}, upstreamError("qbo exchange", err)
	}

	env := q.envelopeFor(tok)
	env.RealmID = cb.RealmID
	return env, nil
}

func (q *QBOAdapter) Refresh(ctx context.Context, refreshToken string) (envelope.Envelope, error) {
	ctx = withHTTPClient(ctx, q.client)

	tok, err := q.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return envelope.Envelope{}, upstreamError("qbo refresh", err)
	}
	return q.envelopeFor(tok), nil
}

func (q *QBOAdapter) envelopeFor(tok *oauth2.Token) envelope.Envelope {
	env := envelopeFromToken(QBO, tok)
	// Intuit reports the refresh token's own expiry alongside the grant.
	if v := tok.Extra("x_refresh_token_expires_in"); v != nil {
		env.Raw = map[string]any{"refresh_token_expires_in": v}
	}
	return env
}
