package conversation

// Focus captures one assessment category the agent can steer a dialogue
// towards, exposed to the frontend as-is.
type Focus struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PromptHint  string   `json:"promptHint"`
	OpeningLine string   `json:"openingLine"`
	Probes      []string `json:"probes,omitempty"` // question areas the agent should work through
}

// Store exposes focus retrieval for HTTP handlers and the response gateway.
type Store interface {
	List() []Focus
	FindByID(id string) (Focus, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Focus
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied focuses.
func NewMemoryStore(items []Focus) *MemoryStore {
	return &MemoryStore{items: append([]Focus(nil), items...)}
}

// List returns the configured focus list.
func (s *MemoryStore) List() []Focus {
	return append([]Focus(nil), s.items...)
}

// FindByID looks up a focus by identifier.
func (s *MemoryStore) FindByID(id string) (Focus, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Focus{}, false
}

// Seed provides the default assessment focuses shipped with the product.
func Seed() []Focus {
	return []Focus{
		{
			ID:          "memory",
			Name:        "Memory",
			Description: "Short-term recall and episodic memory.",
			PromptHint:  "Weave gentle recall prompts into the conversation: recent meals, names mentioned earlier, small details from the user's own answers.",
			OpeningLine: "It's good to talk with you again. Tell me, what did you have for breakfast this morning?",
			Probes:      []string{"recent events", "word recall", "details from earlier in the conversation"},
		},
		{
			ID:          "attention",
			Name:        "Attention",
			Description: "Sustained attention and working memory under light load.",
			PromptHint:  "Keep the user engaged with short multi-part questions and follow-ups that require holding one detail in mind.",
			OpeningLine: "Let's try something together. I'll mention a few things and we'll come back to them as we chat.",
			Probes:      []string{"two-step instructions", "counting backwards", "tracking a topic across turns"},
		},
		{
			ID:          "language",
			Name:        "Language",
			Description: "Word finding, fluency and sentence construction.",
			PromptHint:  "Invite open-ended descriptions and naming. Never correct the user; rephrase warmly when they struggle.",
			OpeningLine: "I'd love to hear you describe something today. What can you see around you right now?",
			Probes:      []string{"object naming", "category fluency", "story retelling"},
		},
		{
			ID:          "orientation",
			Name:        "Orientation",
			Description: "Awareness of time, place and situation.",
			PromptHint:  "Ask naturally about the day, season and place without making it feel like a quiz.",
			OpeningLine: "Hello! How has your week been so far?",
			Probes:      []string{"day and date", "season", "current location"},
		},
		{
			ID:          "general",
			Name:        "General check-in",
			Description: "Open conversation with no single assessment target.",
			PromptHint:  "Hold a relaxed, supportive conversation. Follow the user's lead and keep them talking.",
			OpeningLine: "Hello, it's lovely to hear from you. How are you feeling today?",
		},
	}
}
