package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/lumehealth/lume/backend/internal/apperr"
	"github.com/lumehealth/lume/backend/internal/config"
	"github.com/lumehealth/lume/backend/internal/service/auth"
)

// TokenSource is the slice of the auth.Manager the completions backend
// needs.
type TokenSource interface {
	Token(ctx context.Context) (auth.Credential, error)
	ForceRefresh(ctx context.Context) (auth.Credential, error)
}

// completionsModel adapts the identity-gated completions endpoint to the
// eino chat-model contract so it can run through the same compiled chain
// as the hosted ark model.
type completionsModel struct {
	baseURL string
	cfg     config.AIConfig
	tokens  TokenSource
	httpc   *http.Client
	timeout time.Duration
}

type completionsTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionsRequest struct {
	Prompt      string            `json:"prompt"`
	History     []completionsTurn `json:"history,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"maxTokens"`
	TopP        *float64          `json:"topP,omitempty"`
}

type completionsResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func newCompletionsModel(cfg config.AIConfig, tokens TokenSource) (*completionsModel, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("completions base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("completions backend requires an identity token source")
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &completionsModel{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		tokens:  tokens,
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

// Generate issues one completions call for the assembled message list.
func (m *completionsModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	const op = "ai.completions"

	req, err := m.buildRequest(input)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, "cannot build completions request", err)
	}

	resp, err := m.callAuthed(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.KindUpstream, op, "completions backend returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Text)
	if text == "" {
		return nil, apperr.New(apperr.KindUpstream, op, "completions backend returned an empty choice")
	}

	return schema.AssistantMessage(text, nil), nil
}

// Stream satisfies the chat-model contract with a single-chunk stream; the
// backend has no incremental endpoint.
func (m *completionsModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer sw.Close()
		msg, err := m.Generate(ctx, input, opts...)
		if err != nil {
			sw.Send(nil, err)
			return
		}
		sw.Send(msg, nil)
	}()
	return sr, nil
}

// BindTools is not supported by the completions backend.
func (m *completionsModel) BindTools(_ []*schema.ToolInfo) error {
	return fmt.Errorf("completions backend does not support tool binding")
}

// buildRequest folds the chain's message list into the backend's wire shape:
// the final user message becomes the prompt, everything before it history.
func (m *completionsModel) buildRequest(input []*schema.Message) (completionsRequest, error) {
	if len(input) == 0 {
		return completionsRequest{}, fmt.Errorf("empty message list")
	}

	last := input[len(input)-1]
	if last.Role != schema.User || strings.TrimSpace(last.Content) == "" {
		return completionsRequest{}, fmt.Errorf("message list must end with a non-empty user message")
	}

	history := make([]completionsTurn, 0, len(input)-1)
	for _, msg := range input[:len(input)-1] {
		role := ""
		switch msg.Role {
		case schema.System:
			role = "system"
		case schema.User:
			role = "user"
		case schema.Assistant:
			role = "assistant"
		default:
			continue
		}
		history = append(history, completionsTurn{Role: role, Content: msg.Content})
	}

	return completionsRequest{
		Prompt:      last.Content,
		History:     history,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
		TopP:        m.cfg.TopP,
	}, nil
}

// callAuthed performs the call with a fresh-enough token; an auth rejection
// triggers exactly one forced refresh and one repeat before giving up.
func (m *completionsModel) callAuthed(ctx context.Context, req completionsRequest) (completionsResponse, error) {
	cred, err := m.tokens.Token(ctx)
	if err != nil {
		return completionsResponse{}, err
	}

	resp, err := m.post(ctx, cred.Value, req)
	if err == nil || !apperr.IsAuth(err) {
		return resp, err
	}

	cred, refreshErr := m.tokens.ForceRefresh(ctx)
	if refreshErr != nil {
		return completionsResponse{}, refreshErr
	}
	return m.post(ctx, cred.Value, req)
}

func (m *completionsModel) post(ctx context.Context, token string, req completionsRequest) (completionsResponse, error) {
	const op = "ai.completions"

	body, err := json.Marshal(req)
	if err != nil {
		return completionsResponse{}, apperr.Wrap(apperr.KindValidation, op, "cannot encode request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, m.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return completionsResponse{}, apperr.Wrap(apperr.KindValidation, op, "cannot build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Auth-Token", token)

	httpResp, err := m.httpc.Do(httpReq)
	if err != nil {
		return completionsResponse{}, apperr.Wrap(apperr.FromTransport(err), op, "completions backend unreachable", err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return completionsResponse{}, apperr.Wrap(apperr.KindNetwork, op, "cannot read response body", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return completionsResponse{}, apperr.New(apperr.FromStatus(httpResp.StatusCode), op,
			fmt.Sprintf("status %d: %s", httpResp.StatusCode, snippet(payload)))
	}

	var decoded completionsResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return completionsResponse{}, apperr.Wrap(apperr.KindUpstream, op, "cannot decode response", err)
	}
	return decoded, nil
}

func snippet(body []byte) string {
	const max = 256
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > max {
		return trimmed[:max]
	}
	return trimmed
}
