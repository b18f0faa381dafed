package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"teed-waitlist/internal/common/errors"
)

// KeycloakClient verifies tokens through the realm's introspection endpoint.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

type introspectionResponse struct {
	Active      bool   `json:"active"`
	Subject     string `json:"sub"`
	Email       string `json:"email"`
	Username    string `json:"preferred_username"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (k *KeycloakClient) Verify(ctx context.Context, token string) (*Identity, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("failed to create introspection request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(k.clientID, k.clientSecret)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamDataError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewUpstreamDataError("keycloak",
			fmt.Errorf("introspection failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, errors.NewUpstreamDataError("keycloak", fmt.Errorf("failed to decode introspection response: %w", err))
	}
	if !ir.Active || ir.Subject == "" {
		return nil, errors.NewAuthenticationError("token is not active")
	}

	email := ir.Email
	if email == "" && strings.Contains(ir.Username, "@") {
		email = ir.Username
	}
	return &Identity{UserID: ir.Subject, Email: email, Roles: ir.RealmAccess.Roles}, nil
}
