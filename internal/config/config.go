package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds the OAuth2 settings for a single upstream provider.
// AuthURL/TokenURL/APIBaseURL are fully resolved after Load: overrides from
// the config file win, otherwise the provider's production endpoints are
// filled in (QuickBooks switches its API base on the sandbox environment).
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Environment  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// RateLimit is a fixed-window threshold for one broker action.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// Config contains runtime configuration for the broker service.
type Config struct {
	Xero   ProviderConfig
	Deputy ProviderConfig
	QBO    ProviderConfig

	MasterKey []byte

	SessionTTL  time.Duration
	PollTimeout time.Duration

	StartLimit   RateLimit
	PollLimit    RateLimit
	RefreshLimit RateLimit
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		SessionTTL:   10 * time.Minute,
		PollTimeout:  5 * time.Second,
		StartLimit:   RateLimit{Limit: 10, Window: time.Minute},
		PollLimit:    RateLimit{Limit: 120, Window: time.Minute},
		RefreshLimit: RateLimit{Limit: 60, Window: time.Minute},
	}
}

// Load parses a flat KEY=value file (quoted values trimmed, # comments and
// unknown keys ignored) into a Config with defaults applied.
func Load(path string) (Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("[Load] read config file: %w", err)
	}
	return fromVars(vars)
}

func fromVars(vars map[string]string) (Config, error) {
	cfg := Default()

	cfg.Xero = ProviderConfig{
		ClientID:     vars["XERO_CLIENT_ID"],
		ClientSecret: vars["XERO_CLIENT_SECRET"],
		RedirectURL:  vars["XERO_REDIRECT"],
		Scopes:       parseScopes(vars["XERO_SCOPES"]),
		Environment:  vars["XERO_ENVIRONMENT"],
		AuthURL:      vars["XERO_AUTH_URL"],
		TokenURL:     vars["XERO_TOKEN_URL"],
		APIBaseURL:   vars["XERO_API_BASE_URL"],
	}
	cfg.Deputy = ProviderConfig{
		ClientID:     vars["DEPUTY_CLIENT_ID"],
		ClientSecret: vars["DEPUTY_CLIENT_SECRET"],
		RedirectURL:  vars["DEPUTY_REDIRECT"],
		Scopes:       parseScopes(vars["DEPUTY_SCOPES"]),
		Environment:  vars["DEPUTY_ENVIRONMENT"],
		AuthURL:      vars["DEPUTY_AUTH_URL"],
		TokenURL:     vars["DEPUTY_TOKEN_URL"],
	}
	cfg.QBO = ProviderConfig{
		ClientID:     vars["QBO_CLIENT_ID"],
		ClientSecret: vars["QBO_CLIENT_SECRET"],
		RedirectURL:  vars["QBO_REDIRECT"],
		Scopes:       parseScopes(vars["QBO_SCOPES"]),
		Environment:  vars["QBO_ENVIRONMENT"],
		AuthURL:      vars["QBO_AUTH_URL"],
		TokenURL:     vars["QBO_TOKEN_URL"],
		APIBaseURL:   vars["QBO_API_BASE_URL"],
	}

	if key := vars["BROKER_MASTER_KEY"]; key != "" {
		cfg.MasterKey = []byte(key)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SESSION_TTL_SECONDS", &cfg.SessionTTL},
		{"POLL_TIMEOUT_SECONDS", &cfg.PollTimeout},
		{"RATE_LIMIT_AUTH_START_WINDOW_SECONDS", &cfg.StartLimit.Window},
		{"RATE_LIMIT_POLL_WINDOW_SECONDS", &cfg.PollLimit.Window},
		{"RATE_LIMIT_REFRESH_WINDOW_SECONDS", &cfg.RefreshLimit.Window},
	}
	for _, d := range durations {
		if val := vars[d.key]; val != "" {
			dur, err := parseSeconds(val)
			if err != nil {
				return cfg, fmt.Errorf("[Load] %s: %w", d.key, err)
			}
			*d.dst = dur
		}
	}

	limits := []struct {
		key string
		dst *int
	}{
		{"RATE_LIMIT_AUTH_START", &cfg.StartLimit.Limit},
		{"RATE_LIMIT_POLL", &cfg.PollLimit.Limit},
		{"RATE_LIMIT_REFRESH", &cfg.RefreshLimit.Limit},
	}
	for _, l := range limits {
		if val := vars[l.key]; val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, fmt.Errorf("[Load] %s: %w", l.key, err)
			}
			*l.dst = n
		}
	}

	applyProviderDefaults(&cfg)

	return cfg, nil
}

func applyProviderDefaults(cfg *Config) {
	x := &cfg.Xero
	if len(x.Scopes) == 0 {
		x.Scopes = []string{"offline_access", "accounting.transactions", "accounting.contacts"}
	}
	if x.Environment == "" {
		x.Environment = "production"
	}
	if x.AuthURL == "" {
		x.AuthURL = "https://login.xero.com/identity/connect/authorize"
	}
	if x.TokenURL == "" {
		x.TokenURL = "https://identity.xero.com/connect/token"
	}
	if x.APIBaseURL == "" {
		x.APIBaseURL = "https://api.xero.com"
	}

	d := &cfg.Deputy
	if len(d.Scopes) == 0 {
		d.Scopes = []string{"longlife_refresh_token"}
	}
	if d.Environment == "" {
		d.Environment = "production"
	}
	if d.AuthURL == "" {
		d.AuthURL = "https://once.deputy.com/my/oauth/login"
	}
	if d.TokenURL == "" {
		d.TokenURL = "https://once.deputy.com/my/oauth/access_token"
	}

	q := &cfg.QBO
	if len(q.Scopes) == 0 {
		q.Scopes = []string{"com.intuit.quickbooks.accounting"}
	}
	if q.Environment == "" {
		q.Environment = "production"
	}
	if q.AuthURL == "" {
		q.AuthURL = "https://appcenter.intuit.com/connect/oauth2"
	}
	if q.TokenURL == "" {
		q.TokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	}
	if q.APIBaseURL == "" {
		if q.Environment == "sandbox" {
			q.APIBaseURL = "https://sandbox-quickbooks.api.intuit.com"
		} else {
			q.APIBaseURL = "https://quickbooks.api.intuit.com"
		}
	}
}

// Validate ensures the config has required values for production use.
// All missing keys are reported at once so a broken deployment is fixable
// in a single pass.
func (c Config) Validate() error {
	var missing []string
	if c.Xero.ClientID == "" {
		missing = append(missing, "XERO_CLIENT_ID")
	}
	if c.Xero.RedirectURL == "" {
		missing = append(missing, "XERO_REDIRECT")
	}
	if c.Deputy.ClientID == "" {
		missing = append(missing, "DEPUTY_CLIENT_ID")
	}
	if c.Deputy.ClientSecret == "" {
		missing = append(missing, "DEPUTY_CLIENT_SECRET")
	}
	if c.Deputy.RedirectURL == "" {
		missing = append(missing, "DEPUTY_REDIRECT")
	}
	if c.QBO.ClientID == "" {
		missing = append(missing, "QBO_CLIENT_ID")
	}
	if c.QBO.ClientSecret == "" {
		missing = append(missing, "QBO_CLIENT_SECRET")
	}
	if c.QBO.RedirectURL == "" {
		missing = append(missing, "QBO_REDIRECT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseScopes(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.FieldsFunc(val, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSeconds(val string) (time.Duration, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", val)
	}
	return time.Duration(n) * time.Second, nil
}
