package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerops/go-token-broker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broker.env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, `
# broker configuration
XERO_CLIENT_ID=xero-client
XERO_CLIENT_SECRET="xero-secret"
XERO_REDIRECT=https://broker.example.com/callback/xero
XERO_SCOPES=offline_access accounting.transactions

DEPUTY_CLIENT_ID=deputy-client
DEPUTY_CLIENT_SECRET=deputy-secret
DEPUTY_REDIRECT=https://broker.example.com/callback/deputy

QBO_CLIENT_ID=qbo-client
QBO_CLIENT_SECRET=qbo-secret
QBO_REDIRECT=https://broker.example.com/callback/qbo
QBO_ENVIRONMENT=sandbox

BROKER_MASTER_KEY=super-secret-master-key
SESSION_TTL_SECONDS=300
RATE_LIMIT_AUTH_START=5
RATE_LIMIT_AUTH_START_WINDOW_SECONDS=30

SOME_UNKNOWN_KEY=ignored
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "xero-client", cfg.Xero.ClientID)
	assert.Equal(t, "xero-secret", cfg.Xero.ClientSecret)
	assert.Equal(t, []string{"offline_access", "accounting.transactions"}, cfg.Xero.Scopes)
	assert.Equal(t, "deputy-secret", cfg.Deputy.ClientSecret)
	assert.Equal(t, []byte("super-secret-master-key"), cfg.MasterKey)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.StartLimit.Limit)
	assert.Equal(t, 30*time.Second, cfg.StartLimit.Window)

	// Defaults fill whatever the file does not set.
	assert.Equal(t, 120, cfg.PollLimit.Limit)
	assert.Equal(t, time.Minute, cfg.PollLimit.Window)
	assert.Equal(t, []string{"longlife_refresh_token"}, cfg.Deputy.Scopes)
	assert.Equal(t, "https://identity.xero.com/connect/token", cfg.Xero.TokenURL)
	assert.Equal(t, "https://sandbox-quickbooks.api.intuit.com", cfg.QBO.APIBaseURL)
}

func TestLoadEndpointOverrides(t *testing.T) {
	path := writeConfigFile(t, `
XERO_AUTH_URL=http://127.0.0.1:9001/authorize
XERO_TOKEN_URL=http://127.0.0.1:9001/token
QBO_TOKEN_URL=http://127.0.0.1:9002/token
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9001/authorize", cfg.Xero.AuthURL)
	assert.Equal(t, "http://127.0.0.1:9001/token", cfg.Xero.TokenURL)
	assert.Equal(t, "http://127.0.0.1:9002/token", cfg.QBO.TokenURL)
	assert.Equal(t, "https://appcenter.intuit.com/connect/oauth2", cfg.QBO.AuthURL)
}

func TestValidateReportsAllMissingKeys(t *testing.T) {
	path := writeConfigFile(t, `
XERO_CLIENT_ID=xero-client
XERO_REDIRECT=https://broker.example.com/callback/xero
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEPUTY_CLIENT_ID")
	assert.Contains(t, err.Error(), "DEPUTY_CLIENT_SECRET")
	assert.Contains(t, err.Error(), "QBO_REDIRECT")
	assert.NotContains(t, err.Error(), "XERO_CLIENT_ID")
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	path := writeConfigFile(t, "RATE_LIMIT_POLL=many\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_POLL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}
