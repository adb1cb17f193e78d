// Package envelope defines the normalized token bundle handed back to CLI
// clients after a completed authorization or refresh.
package envelope

import (
	"encoding/json"
	"time"
)

// Envelope is the serialized response delivered to the caller exactly once.
// Expiry is carried on the wire as absolute epoch seconds so no timezone or
// duration drift can creep in between the broker and the consumer.
type Envelope struct {
	Provider     string         `json:"provider"`
	Profile      string         `json:"profile,omitempty"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time      `json:"-"`
	ExpiresUnix  int64          `json:"expires_at"`
	Scope        string         `json:"scope,omitempty"`
	RealmID      string         `json:"realmId,omitempty"`
	Endpoint     string         `json:"endpoint,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	IDToken      string         `json:"id_token,omitempty"`
	Tenants      []Tenant       `json:"tenants,omitempty"`
	Raw          map[string]any `json:"raw,omitempty"`
}

// Tenant captures the organization metadata Xero returns from /connections.
type Tenant struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	TenantType string    `json:"tenantType"`
	CreatedAt  time.Time `json:"createdDateUtc"`
	UpdatedAt  time.Time `json:"updatedDateUtc"`
	TenantName string    `json:"tenantName"`
}

// MarshalJSON folds ExpiresAt into the epoch-seconds wire field.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	a := alias(e)
	if a.ExpiresUnix == 0 && !e.ExpiresAt.IsZero() {
		a.ExpiresUnix = e.ExpiresAt.Unix()
	}
	a.ExpiresAt = time.Time{}
	return json.Marshal(a)
}

// UnmarshalJSON recovers the absolute expiry instant from epoch seconds.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Envelope(a)
	if a.ExpiresUnix != 0 {
		e.ExpiresAt = time.Unix(a.ExpiresUnix, 0).UTC()
	}
	return nil
}
