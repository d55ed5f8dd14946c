package ai

import (
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/lumehealth/lume/backend/internal/config"
	"github.com/lumehealth/lume/backend/internal/model/conversation"
	"github.com/lumehealth/lume/backend/internal/model/dialogue"
)

func TestExchangeHistoryBoundsWindow(t *testing.T) {
	s := &Service{cfg: config.AIConfig{HistoryLimit: 2}, prompts: NewFocusPromptManager()}

	exchanges := []conversation.Exchange{
		{User: "one", Agent: "r1"},
		{User: "two", Agent: "r2"},
		{User: "three", Agent: "r3"},
	}

	history := s.exchangeHistory(exchanges)
	if len(history) != 4 {
		t.Fatalf("expected 2 exchanges (4 messages), got %d", len(history))
	}
	if history[0].Content != "two" {
		t.Fatalf("oldest exchange should be dropped, got %q first", history[0].Content)
	}
	if history[0].Role != schema.User || history[1].Role != schema.Assistant {
		t.Fatalf("unexpected role order: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestMessageHistorySkipsUnknownSenders(t *testing.T) {
	s := &Service{cfg: config.AIConfig{HistoryLimit: 8}, prompts: NewFocusPromptManager()}

	history := s.messageHistory([]dialogue.Message{
		{Sender: "user", Content: "hello"},
		{Sender: "system", Content: "internal marker"},
		{Sender: "assistant", Content: "hi there"},
	})

	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[1].Content != "hi there" {
		t.Fatalf("unexpected history tail: %q", history[1].Content)
	}
}
