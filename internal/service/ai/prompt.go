package ai

import (
	"fmt"
	"strings"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
)

// PromptTemplate defines the structure for focus prompts
type PromptTemplate struct {
	SystemPrompt string
	ContextRules []string
}

// FocusPromptManager manages prompt templates for the assessment focuses
type FocusPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewFocusPromptManager creates a new prompt manager with default templates
func NewFocusPromptManager() *FocusPromptManager {
	manager := &FocusPromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given focus
func (pm *FocusPromptManager) GetPromptTemplate(focusID string) (*PromptTemplate, error) {
	template, exists := pm.templates[focusID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for focus: %s", focusID)
	}
	return template, nil
}

// BuildSystemPrompt creates the full system prompt for an assessment focus
func (pm *FocusPromptManager) BuildSystemPrompt(focus conversation.Focus) string {
	template, err := pm.GetPromptTemplate(focus.ID)
	if err != nil {
		// Fallback to basic prompt if template not found
		return pm.buildBasicSystemPrompt(focus)
	}

	probes := "follow the user's lead"
	if len(focus.Probes) > 0 {
		probes = strings.Join(focus.Probes, "\n- ")
	}

	return fmt.Sprintf(`%s

Current focus: %s
%s

Steering hint: %s

Areas to work through naturally:
- %s

Conversation rules:
- %s

Opening line reference: %s`,
		template.SystemPrompt,
		focus.Name,
		focus.Description,
		focus.PromptHint,
		probes,
		strings.Join(template.ContextRules, "\n- "),
		focus.OpeningLine,
	)
}

// buildBasicSystemPrompt creates a basic system prompt when no template is available
func (pm *FocusPromptManager) buildBasicSystemPrompt(focus conversation.Focus) string {
	return fmt.Sprintf(`You are Lume, a warm conversational companion for older adults. You keep the
conversation flowing naturally while paying attention to %s.

Guidance: %s

Never diagnose, never mention testing or assessment, and never correct the
user harshly. Keep replies short and spoken-sounding.

Opening line reference: %s`,
		focus.Name,
		focus.PromptHint,
		focus.OpeningLine,
	)
}

const companionSystemPrompt = `You are Lume, a warm and patient conversational companion for older adults.
You chat the way a trusted friend would: short spoken-sounding sentences, genuine interest, no lecturing.
You never diagnose, never mention tests or scores, and never make the user feel examined.`

// loadDefaultTemplates loads the default prompt templates for built-in focuses
func (pm *FocusPromptManager) loadDefaultTemplates() {
	pm.templates["memory"] = &PromptTemplate{
		SystemPrompt: companionSystemPrompt + `
In this conversation you gently exercise the user's recall. Bring back small details they mentioned earlier and ask about recent everyday events.`,
		ContextRules: []string{
			"Ask about one thing at a time",
			"When the user cannot remember, move on warmly without dwelling on it",
			"Reuse names and details the user has already given you",
		},
	}

	pm.templates["attention"] = &PromptTemplate{
		SystemPrompt: companionSystemPrompt + `
In this conversation you keep the user lightly engaged with questions that ask them to hold one detail in mind across a turn or two.`,
		ContextRules: []string{
			"Keep instructions to two steps at most",
			"Return to a detail you planted a turn or two earlier",
			"If the user drifts, follow their topic before steering back",
		},
	}

	pm.templates["language"] = &PromptTemplate{
		SystemPrompt: companionSystemPrompt + `
In this conversation you invite the user to describe, name and retell. Open-ended questions beat yes/no questions.`,
		ContextRules: []string{
			"Ask for descriptions of places, objects and people",
			"Never correct word-finding difficulties; rephrase warmly instead",
			"Encourage longer answers with follow-up questions",
		},
	}

	pm.templates["orientation"] = &PromptTemplate{
		SystemPrompt: companionSystemPrompt + `
In this conversation you weave in natural questions about the day, the season, and where the user is, without it ever feeling like a quiz.`,
		ContextRules: []string{
			"Tie time and place questions to concrete things: weather, meals, plans",
			"Accept approximate answers without probing for precision",
		},
	}

	pm.templates["general"] = &PromptTemplate{
		SystemPrompt: companionSystemPrompt + `
This is an open check-in with no single target. Let the user set the pace and keep them talking.`,
		ContextRules: []string{
			"Follow the user's lead",
			"Show you remember what they told you in earlier turns",
		},
	}
}
