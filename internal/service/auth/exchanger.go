package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumehealth/lume/backend/internal/apperr"
)

const exchangeTimeout = 15 * time.Second

// RESTExchanger performs the identity exchange over the provider's token
// endpoint.
type RESTExchanger struct {
	httpc *http.Client
}

// NewRESTExchanger creates the default HTTP-backed exchanger.
func NewRESTExchanger() *RESTExchanger {
	return &RESTExchanger{
		httpc: &http.Client{Timeout: exchangeTimeout},
	}
}

type tokenRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DomainName  string `json:"domainName"`
	ProjectName string `json:"projectName"`
}

type tokenResponse struct {
	TokenValue string    `json:"tokenValue"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Exchange trades the configured principal for a bearer Credential. A
// rejected principal and an unreachable backend surface as distinct kinds.
func (e *RESTExchanger) Exchange(ctx context.Context, cfg IdentityConfig) (Credential, error) {
	const op = "auth.exchange"

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return Credential{}, apperr.New(apperr.KindValidation, op, "identity endpoint is not configured")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return Credential{}, apperr.New(apperr.KindValidation, op, "identity principal is not configured")
	}

	body, err := json.Marshal(tokenRequest{
		Username:    cfg.Username,
		Password:    cfg.Password,
		DomainName:  cfg.DomainName,
		ProjectName: cfg.ProjectName,
	})
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindValidation, op, "marshal token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/auth/tokens", bytes.NewReader(body))
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindValidation, op, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.FromTransport(err), op, "identity backend unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindNetwork, op, "read token response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Credential{}, apperr.New(apperr.KindAuth, op, fmt.Sprintf("identity backend rejected the configured principal (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return Credential{}, apperr.New(apperr.KindUpstream, op, fmt.Sprintf("unexpected status %d from identity backend", resp.StatusCode))
	}

	var payload tokenResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Credential{}, apperr.Wrap(apperr.KindUpstream, op, "decode token response", err)
	}
	if payload.TokenValue == "" {
		return Credential{}, apperr.New(apperr.KindUpstream, op, "identity backend returned an empty token")
	}

	return Credential{Value: payload.TokenValue, ExpiresAt: payload.ExpiresAt}, nil
}
