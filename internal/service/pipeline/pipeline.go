package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
)

// Stage names one step of a voice turn. A turn moves strictly forward:
// AwaitingAudio, Transcribing, GeneratingResponse, Synthesizing, Complete.
type Stage string

const (
	StageAwaitingAudio      Stage = "awaiting_audio"
	StageTranscribing       Stage = "transcribing"
	StageGeneratingResponse Stage = "generating_response"
	StageSynthesizing       Stage = "synthesizing"
	StageComplete           Stage = "complete"
)

// StageError marks a turn that stopped at a specific stage. Callers use
// the stage to report where the turn died.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("turn failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Grade tags a stage outcome. A degraded stage produced a usable substitute
// instead of the real result; the turn still completes.
type Grade string

const (
	GradeOK       Grade = "ok"
	GradeDegraded Grade = "degraded"
	GradeSkipped  Grade = "skipped"
)

// StageOutcome records how one stage ended.
type StageOutcome struct {
	Grade  Grade  `json:"grade"`
	Reason string `json:"reason,omitempty"`
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (transcript string, wordCount int, err error)
}

// Responder produces the agent reply for the current focus and history.
type Responder interface {
	Respond(ctx context.Context, focusID string, history []conversation.Exchange, userText string) (string, error)
}

// Synthesizer renders the reply as speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, format string, err error)
}

// TurnInput carries one user turn. Either Audio or Text must be set; Text
// bypasses transcription for typed conversations.
type TurnInput struct {
	SessionID string
	FocusID   string
	History   []conversation.Exchange
	Audio     []byte
	Format    string
	Text      string

	// Notify, when set, observes each stage transition as it happens.
	Notify func(Stage)
}

// TurnResult is the completed turn with per-stage outcomes.
type TurnResult struct {
	Transcript  string `json:"transcript"`
	Reply       string `json:"reply"`
	Audio       []byte `json:"-"`
	AudioFormat string `json:"audioFormat,omitempty"`
	WordCount   int    `json:"wordCount"`

	Transcription StageOutcome `json:"transcription"`
	Generation    StageOutcome `json:"generation"`
	Synthesis     StageOutcome `json:"synthesis"`
}

// Degraded reports whether any stage fell back to a substitute result.
func (r TurnResult) Degraded() bool {
	return r.Transcription.Grade == GradeDegraded ||
		r.Generation.Grade == GradeDegraded ||
		r.Synthesis.Grade == GradeDegraded
}

const (
	// repeatRequest covers a failed transcription: there is nothing to
	// respond to, so the agent asks the user to try again.
	repeatRequest = "I'm sorry, I didn't quite catch that. Could you say it once more for me?"

	// unavailableReply covers a missing response backend.
	unavailableReply = "I'm having a little trouble finding my words right now, but I'm still here with you. Tell me more?"
)

// Pipeline drives one voice turn through its stages. A nil Transcriber or
// Synthesizer degrades the matching stage; a nil Responder degrades
// generation to a canned reply. A Responder that errors stops the turn.
type Pipeline struct {
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer
}

// New assembles a pipeline over whatever stage services are configured.
func New(transcriber Transcriber, responder Responder, synthesizer Synthesizer) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
	}
}

// RunTurn executes one turn. The result is valid whenever err is nil, even
// when individual stages degraded; err is always a *StageError.
func (p *Pipeline) RunTurn(ctx context.Context, input TurnInput) (TurnResult, error) {
	var result TurnResult
	notify := input.Notify
	if notify == nil {
		notify = func(Stage) {}
	}

	notify(StageAwaitingAudio)
	if len(input.Audio) == 0 && strings.TrimSpace(input.Text) == "" {
		return result, &StageError{Stage: StageAwaitingAudio, Err: fmt.Errorf("turn carries neither audio nor text")}
	}

	// Transcribing.
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageTranscribing, Err: err}
	}
	notify(StageTranscribing)
	transcriptOK := p.transcribe(ctx, input, &result)

	// GeneratingResponse.
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageGeneratingResponse, Err: err}
	}
	notify(StageGeneratingResponse)
	if err := p.generate(ctx, input, transcriptOK, &result); err != nil {
		return result, &StageError{Stage: StageGeneratingResponse, Err: err}
	}

	// Synthesizing.
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageSynthesizing, Err: err}
	}
	notify(StageSynthesizing)
	p.synthesize(ctx, input, &result)

	notify(StageComplete)
	return result, nil
}

// transcribe fills the transcript. It reports whether the transcript is
// trustworthy enough to hand to the responder.
func (p *Pipeline) transcribe(ctx context.Context, input TurnInput, result *TurnResult) bool {
	if text := strings.TrimSpace(input.Text); text != "" {
		result.Transcript = text
		result.WordCount = len(strings.Fields(text))
		result.Transcription = StageOutcome{Grade: GradeSkipped, Reason: "typed input"}
		return true
	}

	if p.transcriber == nil {
		result.Transcription = StageOutcome{Grade: GradeDegraded, Reason: "transcription unavailable"}
		return false
	}

	transcript, words, err := p.transcriber.Transcribe(ctx, input.Audio, input.Format)
	if err != nil {
		log.Printf("[pipeline] transcription degraded session=%s: %v", input.SessionID, err)
		result.Transcription = StageOutcome{Grade: GradeDegraded, Reason: "transcription failed"}
		return false
	}

	result.Transcript = transcript
	result.WordCount = words
	result.Transcription = StageOutcome{Grade: GradeOK}
	return true
}

// generate fills the reply. Without a usable transcript the agent asks the
// user to repeat; without a responder it falls back to a canned line. A
// responder error is fatal for the turn.
func (p *Pipeline) generate(ctx context.Context, input TurnInput, transcriptOK bool, result *TurnResult) error {
	if !transcriptOK {
		result.Reply = repeatRequest
		result.Generation = StageOutcome{Grade: GradeDegraded, Reason: "no usable transcript"}
		return nil
	}

	if p.responder == nil {
		result.Reply = unavailableReply
		result.Generation = StageOutcome{Grade: GradeDegraded, Reason: "response backend unavailable"}
		return nil
	}

	reply, err := p.responder.Respond(ctx, input.FocusID, input.History, result.Transcript)
	if err != nil {
		return err
	}

	result.Reply = reply
	result.Generation = StageOutcome{Grade: GradeOK}
	return nil
}

// synthesize fills the reply audio. Failures leave a text-only turn.
func (p *Pipeline) synthesize(ctx context.Context, input TurnInput, result *TurnResult) {
	if p.synthesizer == nil {
		result.Synthesis = StageOutcome{Grade: GradeDegraded, Reason: "synthesis unavailable"}
		return
	}

	audio, format, err := p.synthesizer.Synthesize(ctx, result.Reply)
	if err != nil {
		log.Printf("[pipeline] synthesis degraded session=%s: %v", input.SessionID, err)
		result.Synthesis = StageOutcome{Grade: GradeDegraded, Reason: "synthesis failed"}
		return
	}

	result.Audio = audio
	result.AudioFormat = format
	result.Synthesis = StageOutcome{Grade: GradeOK}
}
