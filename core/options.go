package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"github.com/koscakluka/ema-tabletop/core/speechtotext"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
)

const defaultGraceDelay = 3 * time.Second

type OrchestratorOption func(*Orchestrator)

// Backend is the managed text backend.
type Backend interface {
	Complete(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error)
	ExecuteAction(ctx context.Context, actionType string, params map[string]any) (*backend.ActionResult, error)
}

func WithBackend(client Backend) OrchestratorOption {
	return func(o *Orchestrator) { o.backend = client }
}

// Transcriber streams microphone audio to a speech-to-text service for
// dictation.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) { o.dictation.set(client) }
}

func WithMicrophone(microphone audio.Microphone) OrchestratorOption {
	return func(o *Orchestrator) { o.microphone = microphone }
}

func WithSpeaker(speaker audio.Speaker) OrchestratorOption {
	return func(o *Orchestrator) { o.speaker = speaker }
}

// WithSynthesizer enables spoken replies through text-to-speech.
func WithSynthesizer(synthesizer speech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithVoiceChannel enables live voice sessions.
func WithVoiceChannel(bootstrapper voice.Bootstrapper, transport voice.Transport) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bootstrapper = bootstrapper
		o.transport = transport
	}
}

func WithVoiceName(name string) OrchestratorOption {
	return func(o *Orchestrator) { o.voiceName = name }
}

// WithInstructions sets the base instructions for voice sessions.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.instructions = instructions }
}

// WithSpeakingInstructions sets the delivery style for text-to-speech.
func WithSpeakingInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.speakingInstructions = instructions }
}

func WithSpeechTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.speechOptions = append(o.speechOptions, speech.WithTimeout(timeout)) }
}

func WithPlaybackTail(tail time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.speechOptions = append(o.speechOptions, speech.WithTrailingBuffer(tail)) }
}

// WithGraceDelay sets how long a guided voice session stays open after the
// turn that produced a new step, so the reply is heard in full.
func WithGraceDelay(delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.graceDelay = delay }
}

func WithClassifier(classifier intents.Classifier) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = classifier }
}

func WithMode(mode Mode) OrchestratorOption {
	return func(o *Orchestrator) { o.mode = mode }
}

func WithAudioResponses(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.audioResponses = enabled }
}

// WithCloser registers a resource that Close releases last.
func WithCloser(closer func() error) OrchestratorOption {
	return func(o *Orchestrator) { o.closers = append(o.closers, closer) }
}

func WithTranscriptCallback(callback func(message transcript.Message)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTranscript = callback }
}

func WithStatusCallback(callback func(status Status)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onStatus = callback }
}

func WithNoticeCallback(callback func(notice Notice)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onNotice = callback }
}

// WithStepCallback is called whenever the walkthrough moves or grows.
func WithStepCallback(callback func(state walkthrough.State)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onStep = callback }
}

func WithSpeakingCallback(callback func(isSpeaking bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onSpeaking = callback }
}

func WithVoiceCallback(callback func(isActive bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onVoice = callback }
}

// WithVoicePartialCallback receives the user's words while they speak in a
// voice session.
func WithVoicePartialCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onVoicePartial = callback }
}

// WithDraftCallback receives the dictated draft as it grows.
func WithDraftCallback(callback func(draft string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onDraft = callback }
}

func WithAudioResponsesCallback(callback func(enabled bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onAudioResponses = callback }
}
