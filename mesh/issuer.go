// Package mesh issues one-time join credentials for the private mesh
// network (a Tailscale-compatible API). The issuer is optional: when the
// process has no mesh credentials configured, Configured reports false and
// provisioning skips the mesh attachment step entirely.
package mesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
)

// DefaultAPIBase is the mesh coordination server API root.
const DefaultAPIBase = "https://api.tailscale.com/api/v2"

// keyExpirySeconds is the fixed 90-day expiry for issued join keys.
const keyExpirySeconds = 90 * 24 * 60 * 60

// Config carries the OAuth client credentials and key policy for the mesh
// network. Empty ClientID/ClientSecret mean the mesh is unconfigured.
type Config struct {
	ClientID     string
	ClientSecret string

	// Tailnet is the network name the keys are scoped to.
	Tailnet string

	// Tag is the device tag every issued key is bound to.
	Tag string

	// APIBase overrides the coordination server URL (tests).
	APIBase string
}

// KeyIssuer implements interfaces.MeshKeyIssuer against the mesh HTTP API.
type KeyIssuer struct {
	cfg        Config
	apiBase    string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a key issuer. The issuer is inert when cfg has no credentials.
func New(cfg Config, log *slog.Logger) *KeyIssuer {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &KeyIssuer{
		cfg:        cfg,
		apiBase:    apiBase,
		httpClient: &http.Client{},
		log:        log,
	}
}

// Configured reports whether mesh credentials are present.
func (i *KeyIssuer) Configured() bool {
	return i.cfg.ClientID != "" && i.cfg.ClientSecret != ""
}

// Token performs the OAuth client-credentials exchange and returns a bearer
// token for the key API.
func (i *KeyIssuer) Token(ctx context.Context) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     i.cfg.ClientID,
		ClientSecret: i.cfg.ClientSecret,
		TokenURL:     i.apiBase + "/oauth/token",
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return "", &interfaces.RemoteAPIError{Operation: "mesh token exchange", Err: err}
	}
	return tok.AccessToken, nil
}

type createKeyRequest struct {
	Capabilities  keyCapabilities `json:"capabilities"`
	ExpirySeconds int             `json:"expirySeconds"`
	Description   string          `json:"description"`
}

type keyCapabilities struct {
	Devices struct {
		Create struct {
			Reusable      bool     `json:"reusable"`
			Ephemeral     bool     `json:"ephemeral"`
			Preauthorized bool     `json:"preauthorized"`
			Tags          []string `json:"tags"`
		} `json:"create"`
	} `json:"devices"`
}

// CreateKey requests a single-use, non-reusable, pre-authorized join key
// tagged with the configured device tag and a 90-day expiry.
func (i *KeyIssuer) CreateKey(ctx context.Context, token, hostname string) (interfaces.AuthKey, error) {
	reqBody := createKeyRequest{
		ExpirySeconds: keyExpirySeconds,
		Description:   hostname,
	}
	reqBody.Capabilities.Devices.Create.Preauthorized = true
	reqBody.Capabilities.Devices.Create.Tags = []string{i.cfg.Tag}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{Operation: "mesh key create", Err: err}
	}

	url := fmt.Sprintf("%s/tailnet/%s/keys", i.apiBase, i.cfg.Tailnet)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{Operation: "mesh key create", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{Operation: "mesh key create", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{Operation: "mesh key create", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{
			Operation:  "mesh key create",
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}

	var out struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return interfaces.AuthKey{}, &interfaces.RemoteAPIError{Operation: "mesh key create", Err: err}
	}

	i.log.Info("Issued mesh join key", "keyID", out.ID, "hostname", hostname)
	return interfaces.AuthKey{ID: out.ID, Key: out.Key}, nil
}
