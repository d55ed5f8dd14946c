package conversation

// Exchange is one completed user/agent pair in a dialogue.
type Exchange struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// Turn is the input to one conversational turn. History is owned by the
// caller; the pipeline reads it and returns a new agent utterance without
// mutating the turn.
type Turn struct {
	History []Exchange `json:"history"`
	Focus   string     `json:"focus"`
}
