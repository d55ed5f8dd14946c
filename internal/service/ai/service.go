package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/lumehealth/lume/backend/internal/apperr"
	"github.com/lumehealth/lume/backend/internal/config"
	"github.com/lumehealth/lume/backend/internal/model/conversation"
	"github.com/lumehealth/lume/backend/internal/model/dialogue"
)

// Service encapsulates response generation for assessment dialogues.
type Service struct {
	chatModel model.ChatModel
	focuses   conversation.Store
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	prompts   *FocusPromptManager
}

// NewService creates the response service. Provider "gateway" routes through
// the identity-gated completions backend; "ark" keeps the hosted model.
func NewService(ctx context.Context, focuses conversation.Store, cfg config.AIConfig, tokens TokenSource) (*Service, error) {
	var (
		chatModel model.ChatModel
		err       error
	)
	switch cfg.Provider {
	case "ark":
		chatModel, err = cfg.NewArkChatModel(ctx)
	default:
		chatModel, err = newCompletionsModel(cfg, tokens)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		focuses:   focuses,
		cfg:       cfg,
		chain:     runnable,
		prompts:   NewFocusPromptManager(),
	}, nil
}

// StreamingEnabled reports whether SSE streaming output is switched on.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// GenerateResponse generates the agent reply for a focus-steered dialogue.
func (s *Service) GenerateResponse(ctx context.Context, sessionID string, focus conversation.Focus, messages []dialogue.Message, userMessage string) (*schema.Message, error) {
	input := s.buildChainInput(focus, s.messageHistory(messages), userMessage)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	log.Printf("[ai] generated response for session=%s, focus=%s, length=%d", sessionID, focus.ID, len(response.Content))
	return response, nil
}

// Respond generates one reply from exchange-shaped history. It is the
// surface the turn pipeline drives.
func (s *Service) Respond(ctx context.Context, focusID string, history []conversation.Exchange, userText string) (string, error) {
	focus, ok := s.focuses.FindByID(focusID)
	if !ok {
		focus = conversation.Focus{ID: focusID, Name: focusID, PromptHint: "Hold a relaxed, supportive conversation."}
	}

	input := s.buildChainInput(focus, s.exchangeHistory(history), userText)
	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", classify(err)
	}
	return response.Content, nil
}

// StreamResponse streams reply chunks via the configured chain.
func (s *Service) StreamResponse(ctx context.Context, focus conversation.Focus, messages []dialogue.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	input := s.buildChainInput(focus, s.messageHistory(messages), userMessage)

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	return stream, nil
}

// GetChatModel returns the underlying chat model.
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

func (s *Service) buildChainInput(focus conversation.Focus, history []*schema.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(focus),
		"history": history,
		"query":   userMessage,
	}
}

func (s *Service) historyLimit() int {
	if s.cfg.HistoryLimit > 0 {
		return s.cfg.HistoryLimit
	}
	return 8
}

func (s *Service) messageHistory(messages []dialogue.Message) []*schema.Message {
	limit := s.historyLimit() * 2 // one exchange is two messages

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant", "agent":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

func (s *Service) exchangeHistory(exchanges []conversation.Exchange) []*schema.Message {
	limit := s.historyLimit()

	if len(exchanges) == 0 {
		return nil
	}

	startIdx := 0
	if len(exchanges) > limit {
		startIdx = len(exchanges) - limit
	}

	history := make([]*schema.Message, 0, 2*(len(exchanges)-startIdx))
	for _, ex := range exchanges[startIdx:] {
		if ex.User != "" {
			history = append(history, schema.UserMessage(ex.User))
		}
		if ex.Agent != "" {
			history = append(history, schema.AssistantMessage(ex.Agent, nil))
		}
	}

	return history
}

// classify preserves an already-classified error and tags everything else
// as an upstream failure of the response backend.
func classify(err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Wrap(apperr.KindUpstream, "ai.respond", "failed to run response chain", err)
}
