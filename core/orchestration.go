// Package orchestration runs one companion session: typed, dictated and
// spoken input, text and voice replies, confirmed actions and guided
// walkthroughs, all sharing a single microphone and speaker.
package orchestration

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/koscakluka/ema-tabletop/core/actions"
	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"github.com/koscakluka/ema-tabletop/core/spoken"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
)

type Orchestrator struct {
	backend     Backend
	classifier  intents.Classifier
	catalogue   *actions.Catalogue
	arbiter     *audio.Arbiter
	spoken      *spoken.Registry
	transcript  *transcript.Log
	walkthrough *walkthrough.Machine

	microphone    audio.Microphone
	speaker       audio.Speaker
	synthesizer   speech.Synthesizer
	speechOptions []speech.Option
	speech        *speech.Channel
	bootstrapper  voice.Bootstrapper
	transport     voice.Transport
	voice         *voice.Manager
	dictation     dictation

	voiceName            string
	instructions         string
	speakingInstructions string
	graceDelay           time.Duration

	callbacks callbacks
	closers   []func() error

	baseContext context.Context
	cancelBase  context.CancelFunc
	closeOnce   sync.Once

	mu               sync.Mutex
	closed           bool
	mode             Mode
	audioResponses   bool
	inFlight         bool
	turnGeneration   uint64
	cancelTurn       context.CancelFunc
	pending          *actions.Action
	speaking         bool
	speakDone        chan struct{}
	cancelSpeech     context.CancelFunc
	speechGeneration uint64
	game             string
	rules            string
	pushedRules      string
	voiceGeneration  uint64
	graceTimer       *time.Timer
	lastStatus       Status
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		classifier: intents.NewHeuristic(),
		catalogue:  actions.NewCatalogue(),
		arbiter:    audio.NewArbiter(),
		spoken:     spoken.NewRegistry(),
		transcript: transcript.NewLog(),
		graceDelay: defaultGraceDelay,
		mode:       ModeHub,
		lastStatus: StatusIdle,
	}
	o.baseContext, o.cancelBase = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(o)
	}

	o.walkthrough = walkthrough.New(
		walkthrough.WithTranscript(o.transcript),
		walkthrough.WithSpokenRegistry(o.spoken),
	)
	if o.synthesizer != nil {
		speechOptions := append([]speech.Option{
			speech.WithSpeaker(o.speaker),
			speech.WithVoice(o.voiceName),
		}, o.speechOptions...)
		o.speech = speech.NewChannel(o.synthesizer, o.arbiter, speechOptions...)
	}
	if o.bootstrapper != nil && o.transport != nil {
		o.voice = voice.NewManager(o.bootstrapper, o.transport, o.arbiter,
			voice.WithMicrophone(o.microphone),
			voice.WithSpeaker(o.speaker),
		)
	}

	return o
}

// Close tears down every audio session, abandons the pending turn and
// releases the configured resources. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.turnGeneration++
		o.inFlight = false
		o.pending = nil
		cancelTurn := o.cancelTurn
		o.cancelTurn = nil
		o.stopGraceTimerLocked()
		o.mu.Unlock()

		if cancelTurn != nil {
			cancelTurn()
		}
		o.StopVoice()
		o.StopSpeaking()
		o.StopDictation()
		o.arbiter.Revoke()
		o.cancelBase()

		var errs []error
		for _, closer := range o.closers {
			errs = append(errs, closer())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Error("failed to close orchestrator resources", "error", err)
		}
	})
}

func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

// Snapshot returns a point-in-time copy of the session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snapshot := Snapshot{
		Mode:           o.mode,
		Status:         o.statusLocked(),
		AudioResponses: o.audioResponses,
		Game:           o.game,
		Rules:          o.rules,
	}
	if o.pending != nil {
		pending := *o.pending
		pending.Params = maps.Clone(pending.Params)
		snapshot.PendingAction = &pending
	}
	o.mu.Unlock()

	if o.voice != nil {
		snapshot.Voice = o.voice.State()
	}
	snapshot.Dictating = o.dictation.active()
	snapshot.Walkthrough = o.walkthrough.Snapshot()
	return snapshot
}

func (o *Orchestrator) statusLocked() Status {
	switch {
	case o.pending != nil:
		return StatusActionPending
	case o.inFlight:
		return StatusAwaitingResponse
	case o.speaking:
		return StatusSpeaking
	}
	return StatusIdle
}

// publishStatus reports the status if it changed since the last report.
func (o *Orchestrator) publishStatus() {
	o.mu.Lock()
	status := o.statusLocked()
	changed := status != o.lastStatus
	o.lastStatus = status
	o.mu.Unlock()

	if changed {
		o.callbacks.statusChanged(status)
	}
}

// voiceBusy reports whether a voice session is live or being negotiated.
func (o *Orchestrator) voiceBusy() bool {
	return o.voice != nil && o.voice.State() != voice.StateIdle
}

func (o *Orchestrator) appendMessage(role transcript.Role, content string) transcript.Message {
	message := o.transcript.Append(role, content)
	o.callbacks.transcriptAppended(message)
	return message
}

// completionContext describes the table for the next completion request.
func (o *Orchestrator) completionContext(instruction string, possibleHouseRule bool) backend.CompletionContext {
	o.mu.Lock()
	mode, game, rules := o.mode, o.game, o.rules
	o.mu.Unlock()

	state := o.walkthrough.Snapshot()
	if game == "" {
		game = state.Game
	}
	completionContext := backend.CompletionContext{
		Mode:              string(mode),
		Game:              game,
		Rules:             rules,
		Guided:            mode == ModeGuided,
		Instruction:       instruction,
		PossibleHouseRule: possibleHouseRule,
		AvailableActions:  o.catalogue.Schemas(),
	}
	if step := state.CurrentStep(); completionContext.Guided && step != nil {
		completionContext.StepNumber = state.StepIndex + 1
		completionContext.StepSummary = step.Summary
	}
	return completionContext
}

// history is the conversation as the backend sees it. System notes are
// for the players only.
func (o *Orchestrator) history() []backend.ChatMessage {
	messages := o.transcript.Messages()
	history := make([]backend.ChatMessage, 0, len(messages))
	for _, message := range messages {
		if message.Role == transcript.RoleSystem {
			continue
		}
		history = append(history, backend.ChatMessage{Role: string(message.Role), Content: message.Content})
	}
	return history
}
