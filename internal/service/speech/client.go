package speech

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
	"github.com/lumehealth/lume/backend/internal/service/auth"
)

const defaultTimeout = 30 * time.Second

// TokenSource is the slice of the auth.Manager the gateways need.
type TokenSource interface {
	Token(ctx context.Context) (auth.Credential, error)
	ForceRefresh(ctx context.Context) (auth.Credential, error)
}

// restClient is the transport shared by the recognition and synthesis
// gateways. Every call attaches the current token; an auth-classified
// failure triggers exactly one forced refresh followed by one repeat of the
// call. Transient failures are retried only when configured (default: not
// at all).
type restClient struct {
	baseURL          string
	httpc            *http.Client
	tokens           TokenSource
	timeout          time.Duration
	transientRetries int
}

func newRESTClient(baseURL string, tokens TokenSource, timeoutSeconds, transientRetries int) *restClient {
	timeout := defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &restClient{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:            &http.Client{},
		tokens:           tokens,
		timeout:          timeout,
		transientRetries: transientRetries,
	}
}

func (c *restClient) postJSON(ctx context.Context, op, path string, payload, out any) error {
	if c.baseURL == "" {
		return apperr.New(apperr.KindValidation, op, "speech backend URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, "marshal request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.transientRetries; attempt++ {
		lastErr = c.authedCall(ctx, op, path, body, out)
		if lastErr == nil || !apperr.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// authedCall performs one logical call: token, request, and at most one
// repeat with a forcibly refreshed token when the first response is
// auth-classified. A failing retry surfaces as-is, never a second retry.
func (c *restClient) authedCall(ctx context.Context, op, path string, body []byte, out any) error {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, op, path, cred.Value, body, out)
	if err == nil || !apperr.IsAuth(err) {
		return err
	}

	cred, refreshErr := c.tokens.ForceRefresh(ctx)
	if refreshErr != nil {
		return refreshErr
	}
	return c.do(ctx, op, path, cred.Value, body, out)
}

func (c *restClient) do(ctx context.Context, op, path, token string, body []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.FromTransport(err), op, "speech backend unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.New(apperr.FromStatus(resp.StatusCode), op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindUpstream, op, "malformed response", err)
	}
	return nil
}

func snippet(raw []byte) string {
	const max = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max]
	}
	return s
}
