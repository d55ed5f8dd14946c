package ai

import (
	"strings"
	"testing"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
)

func TestBuildSystemPromptUsesFocusTemplate(t *testing.T) {
	pm := NewFocusPromptManager()
	focus, ok := conversation.NewMemoryStore(conversation.Seed()).FindByID("memory")
	if !ok {
		t.Fatal("seed data missing the memory focus")
	}

	prompt := pm.BuildSystemPrompt(focus)
	if !strings.Contains(prompt, "Lume") {
		t.Fatal("prompt must carry the companion identity")
	}
	if !strings.Contains(prompt, focus.PromptHint) {
		t.Fatal("prompt must carry the focus steering hint")
	}
	for _, probe := range focus.Probes {
		if !strings.Contains(prompt, probe) {
			t.Fatalf("prompt missing probe %q", probe)
		}
	}
}

func TestBuildSystemPromptFallsBackForUnknownFocus(t *testing.T) {
	pm := NewFocusPromptManager()
	prompt := pm.BuildSystemPrompt(conversation.Focus{
		ID:         "custom",
		Name:       "Custom",
		PromptHint: "keep it light",
	})

	if !strings.Contains(prompt, "keep it light") {
		t.Fatal("fallback prompt must still carry the hint")
	}
	if !strings.Contains(prompt, "Never diagnose") {
		t.Fatal("fallback prompt must keep the safety framing")
	}
}
