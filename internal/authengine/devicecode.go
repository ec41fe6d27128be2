package authengine

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/nexusrun/coreagent/internal/credstore"
	"github.com/nexusrun/coreagent/pkg/models"
)

// DeviceAuthorization is what a caller presents to the user: a short code
// to enter at verificationURI, and the device_code to poll with.
type DeviceAuthorization = oauth2.DeviceAuthResponse

// DeviceCodeEngine implements the GitHub-Copilot-style device authorization
// grant: BeginDeviceFlow obtains a user code + verification URL, Poll
// exchanges the device code for tokens once the user has approved it.
type DeviceCodeEngine struct {
	providerID string
	store      credstore.Store
	oauthCfg   oauth2.Config
}

// NewDeviceCodeEngine creates a DeviceCodeEngine for providerID using the
// given client ID and device/token endpoints.
func NewDeviceCodeEngine(providerID, clientID, deviceAuthURL, tokenURL string, scopes []string, store credstore.Store) *DeviceCodeEngine {
	return &DeviceCodeEngine{
		providerID: providerID,
		store:      store,
		oauthCfg: oauth2.Config{
			ClientID: clientID,
			Scopes:   scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: deviceAuthURL,
				TokenURL:      tokenURL,
			},
		},
	}
}

func (e *DeviceCodeEngine) ProviderID() string { return e.providerID }

// BeginDeviceFlow requests a device code and user code from the
// authorization server.
func (e *DeviceCodeEngine) BeginDeviceFlow(ctx context.Context) (*DeviceAuthorization, error) {
	da, err := e.oauthCfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("authengine: begin device flow for %s: %w", e.providerID, err)
	}
	return da, nil
}

// Poll exchanges the device authorization for tokens, blocking and
// internally retrying at da.Interval until the user approves, the code
// expires, or access is denied. The underlying oauth2 client maps
// authorization_pending/slow_down to internal retries and surfaces
// expired_token/access_denied as a terminal error.
func (e *DeviceCodeEngine) Poll(ctx context.Context, da *DeviceAuthorization) (*models.Credential, error) {
	token, err := e.oauthCfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("authengine: device flow poll for %s: %w", e.providerID, err)
	}
	cred := credentialFromToken(token)
	if err := e.store.Set(ctx, e.providerID, cred); err != nil {
		return nil, fmt.Errorf("authengine: persist %s credentials: %w", e.providerID, err)
	}
	return &cred, nil
}

func (e *DeviceCodeEngine) Credentials(ctx context.Context) (*models.Credential, error) {
	cred, err := e.store.Get(ctx, e.providerID)
	if err != nil {
		return nil, fmt.Errorf("authengine: get %s credentials: %w", e.providerID, err)
	}
	if cred == nil {
		return nil, ErrNoCredentials
	}
	return cred, nil
}

func (e *DeviceCodeEngine) SetCredentials(ctx context.Context, cred models.Credential) error {
	cred.Type = models.CredentialOAuth
	return e.store.Set(ctx, e.providerID, cred)
}

func (e *DeviceCodeEngine) RemoveCredentials(ctx context.Context) error {
	return e.store.Remove(ctx, e.providerID)
}

func (e *DeviceCodeEngine) HasCredentials(ctx context.Context) bool {
	cred, err := e.store.Get(ctx, e.providerID)
	return err == nil && cred != nil
}
