package models

import "time"

// CredentialType discriminates the variant stored in a Credential.
type CredentialType string

const (
	CredentialAPIKey CredentialType = "api_key"
	CredentialOAuth  CredentialType = "oauth"
	CredentialCustom CredentialType = "custom"
)

// Credential is a tagged union over the ways a provider can be authorized.
// Only the field matching Type is populated; json.Marshal/Unmarshal round
// trips it through the "type" discriminator so the credential store can
// persist a heterogeneous map without reflection per variant.
type Credential struct {
	Type CredentialType `json:"type"`

	// APIKey is set when Type == CredentialAPIKey.
	APIKey string `json:"api_key,omitempty"`

	// OAuth fields are set when Type == CredentialOAuth.
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`

	// Custom holds provider-specific fields when Type == CredentialCustom
	// (e.g. Azure resource/deployment, Bedrock region/ARN).
	Custom map[string]string `json:"custom,omitempty"`
}

// Expired reports whether an OAuth credential's access token has passed its
// expiry. Non-OAuth credentials never expire.
func (c Credential) Expired(now time.Time) bool {
	if c.Type != CredentialOAuth || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
