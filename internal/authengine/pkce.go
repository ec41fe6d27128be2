package authengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/nexusrun/coreagent/internal/credstore"
	"github.com/nexusrun/coreagent/pkg/models"
)

// Anthropic's PKCE OAuth parameters, resolved from the reference
// implementation this runtime was distilled from.
const (
	AnthropicClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	AnthropicRedirectURI  = "http://localhost:60023/callback"
	AnthropicAuthorizeURL = "https://auth.anthropic.com/authorize"
	AnthropicTokenURL     = "https://auth.anthropic.com/oauth/token"
	AnthropicScope        = "read:models"
)

// PKCEFlow holds the state a caller must keep between starting an
// authorization request and exchanging its callback.
type PKCEFlow struct {
	AuthURL  string
	State    string
	verifier string
}

// PKCEEngine implements the Anthropic-style authorization-code-with-PKCE
// flow: StartFlow produces a browser URL and a verifier/state pair the
// caller holds; Exchange trades the callback code for tokens; Credentials
// transparently refreshes an expired access token using the stored refresh
// token.
type PKCEEngine struct {
	providerID string
	store      credstore.Store
	oauthCfg   oauth2.Config
}

// NewAnthropicPKCEEngine creates a PKCEEngine configured with Anthropic's
// published OAuth parameters.
func NewAnthropicPKCEEngine(store credstore.Store) *PKCEEngine {
	return &PKCEEngine{
		providerID: "anthropic",
		store:      store,
		oauthCfg: oauth2.Config{
			ClientID:    AnthropicClientID,
			RedirectURL: AnthropicRedirectURI,
			Scopes:      []string{AnthropicScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  AnthropicAuthorizeURL,
				TokenURL: AnthropicTokenURL,
			},
		},
	}
}

func (e *PKCEEngine) ProviderID() string { return e.providerID }

// StartFlow generates a PKCE verifier and state, and returns the
// authorization URL the user must open. The returned PKCEFlow must be
// retained (e.g. keyed by State) until Exchange is called.
func (e *PKCEEngine) StartFlow() *PKCEFlow {
	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier() // same 32-byte random shape, reused as an opaque CSRF token
	authURL := e.oauthCfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return &PKCEFlow{AuthURL: authURL, State: state, verifier: verifier}
}

// Exchange trades an authorization code for tokens and persists the
// resulting credential. state must match the PKCEFlow's State; callers are
// responsible for that comparison before invoking Exchange so a forged
// callback is rejected before any network call is made.
func (e *PKCEEngine) Exchange(ctx context.Context, flow *PKCEFlow, code string) (*models.Credential, error) {
	token, err := e.oauthCfg.Exchange(ctx, code, oauth2.VerifierOption(flow.verifier))
	if err != nil {
		return nil, fmt.Errorf("authengine: exchange code for %s: %w", e.providerID, err)
	}
	cred := credentialFromToken(token)
	if err := e.store.Set(ctx, e.providerID, cred); err != nil {
		return nil, fmt.Errorf("authengine: persist %s credentials: %w", e.providerID, err)
	}
	return &cred, nil
}

// Credentials returns the stored credential, refreshing it first if its
// access token has expired.
func (e *PKCEEngine) Credentials(ctx context.Context) (*models.Credential, error) {
	cred, err := e.store.Get(ctx, e.providerID)
	if err != nil {
		return nil, fmt.Errorf("authengine: get %s credentials: %w", e.providerID, err)
	}
	if cred == nil {
		return nil, ErrNoCredentials
	}
	if !cred.Expired(time.Now()) || cred.RefreshToken == "" {
		return cred, nil
	}

	src := e.oauthCfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	})
	refreshed, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("authengine: refresh %s token: %w", e.providerID, err)
	}
	newCred := credentialFromToken(refreshed)
	if err := e.store.Set(ctx, e.providerID, newCred); err != nil {
		return nil, fmt.Errorf("authengine: persist refreshed %s credentials: %w", e.providerID, err)
	}
	return &newCred, nil
}

func (e *PKCEEngine) SetCredentials(ctx context.Context, cred models.Credential) error {
	cred.Type = models.CredentialOAuth
	return e.store.Set(ctx, e.providerID, cred)
}

func (e *PKCEEngine) RemoveCredentials(ctx context.Context) error {
	return e.store.Remove(ctx, e.providerID)
}

func (e *PKCEEngine) HasCredentials(ctx context.Context) bool {
	cred, err := e.store.Get(ctx, e.providerID)
	return err == nil && cred != nil
}

func credentialFromToken(token *oauth2.Token) models.Credential {
	return models.Credential{
		Type:         models.CredentialOAuth,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}
