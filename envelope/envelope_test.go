package envelope_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ledgerops/go-token-broker/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryRoundTripsAsEpochSeconds(t *testing.T) {
	expiry := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("AEST", 10*3600))

	env := envelope.Envelope{
		Provider:     "deputy",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expiry,
		Endpoint:     "acme.au.deputy.com",
		TokenType:    "Bearer",
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.EqualValues(t, expiry.Unix(), wire["expires_at"])

	var back envelope.Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.ExpiresAt.Equal(expiry), "expiry instant drifted across serialization")
	assert.Equal(t, env.Endpoint, back.Endpoint)
	assert.Equal(t, env.RefreshToken, back.RefreshToken)
}

func TestTenantsAndRealmSurvive(t *testing.T) {
	env := envelope.Envelope{
		Provider:    "xero",
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
		Tenants: []envelope.Tenant{
			{ID: "conn-1", TenantID: "tenant-1", TenantType: "ORGANISATION", TenantName: "Acme Pty Ltd"},
		},
		Raw: map[string]any{"refresh_token_expires_in": float64(8726400)},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back envelope.Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Tenants, 1)
	assert.Equal(t, "Acme Pty Ltd", back.Tenants[0].TenantName)
	assert.Equal(t, float64(8726400), back.Raw["refresh_token_expires_in"])
}

func TestOmittedExpiryStaysZero(t *testing.T) {
	var back envelope.Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"provider":"qbo","access_token":"a","expires_at":0}`), &back))
	assert.True(t, back.ExpiresAt.IsZero())
}
