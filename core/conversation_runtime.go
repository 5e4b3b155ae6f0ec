package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-tabletop/core/events"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StartVoice opens a live voice session. Playback and dictation are torn
// down before negotiation starts. A failed start produces one notice and is
// not retried.
func (o *Orchestrator) StartVoice(ctx context.Context) error {
	if o.voice == nil {
		return ErrVoiceUnavailable
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.stopGraceTimerLocked()
	// the session being replaced must not report the channel as closed
	o.voiceGeneration++
	generation := o.voiceGeneration
	o.mu.Unlock()

	ctx, span := tracer.Start(ctx, "start voice")
	defer span.End()

	config := o.voiceConfig()
	span.SetAttributes(
		attribute.String("voice.game", config.Context.Game),
		attribute.Bool("voice.guided", config.Context.Guided),
	)

	// the channel counts as active while it is being negotiated
	o.callbacks.voiceChanged(true)
	session, err := o.voice.Start(ctx, config)
	if err != nil {
		o.callbacks.voiceChanged(o.voiceBusy())
		o.publishStatus()
		if isTeardown(err) {
			return err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.callbacks.notice(Notice{
			Kind:    NoticeVoiceFailed,
			Message: "Couldn't start the voice chat. Please try again.",
			Err:     err,
		})
		return err
	}

	o.mu.Lock()
	o.pushedRules = config.Context.Rules
	o.mu.Unlock()

	goWorker(o.baseContext, "voice events", func(context.Context) error {
		o.consumeVoice(session, generation)
		return nil
	})
	return nil
}

// StopVoice closes the voice session, or abandons one being negotiated. It
// never waits on the network.
func (o *Orchestrator) StopVoice() {
	o.mu.Lock()
	o.stopGraceTimerLocked()
	o.mu.Unlock()

	if o.voice != nil {
		o.voice.Stop()
	}
}

func (o *Orchestrator) voiceConfig() voice.Config {
	o.mu.Lock()
	mode, game, rules := o.mode, o.game, o.rules
	o.mu.Unlock()

	state := o.walkthrough.Snapshot()
	if game == "" {
		game = state.Game
	}
	sessionContext := voice.SessionContext{
		Game:   game,
		Rules:  rules,
		Guided: mode == ModeGuided,
	}
	if step := state.CurrentStep(); sessionContext.Guided && step != nil {
		sessionContext.StepNumber = state.StepIndex + 1
		sessionContext.StepTitle = step.Title
		sessionContext.StepDetail = step.Detail
	}
	return voice.Config{
		Instructions: o.instructions,
		Voice:        o.voiceName,
		Context:      sessionContext,
	}
}

// consumeVoice records one session's turns until its event stream ends.
// Replies are never read aloud by text-to-speech; the session already
// speaks them.
func (o *Orchestrator) consumeVoice(session *voice.Session, generation uint64) {
	var (
		intent            intents.Result
		answeringQuestion bool
		stepAdded         bool
	)

	for event := range session.Events() {
		switch event := event.(type) {
		case events.UserSpeechStarted:
			o.stopGraceTimer(generation)

		case events.UserTranscriptPartial:
			o.callbacks.voicePartial(event.Transcript)

		case events.UserTranscriptFinal:
			o.callbacks.voicePartial("")
			if event.Transcript == "" {
				continue
			}
			intent = o.classifier.Classify(event.Transcript)
			guided := o.Mode() == ModeGuided
			if guided && intent.Intent == intents.IntentStartWalkthrough && intent.Game != "" {
				o.startWalkthrough(intent.Game)
			}
			o.appendMessage(transcript.RoleUser, event.Transcript)

			if intent.IsConfirmation() && o.hasPendingAction() {
				o.resolveBySpeech(intent)
				continue
			}
			if guided && !intent.IsStepAdvancing() {
				answeringQuestion = o.walkthrough.SetAnsweringQuestion()
			}

		case events.AssistantTranscriptDone:
			if event.Transcript == "" {
				continue
			}
			message := o.appendMessage(transcript.RoleAssistant, event.Transcript)
			if o.Mode() == ModeGuided && o.applyAssistantText(message.Content, intent.IsStepAdvancing()) {
				stepAdded = true
			}

		case events.TurnDone:
			if answeringQuestion {
				o.walkthrough.ReturnToStep()
			}
			if stepAdded && o.Mode() == ModeGuided {
				o.scheduleVoiceDisconnect(generation)
			}
			intent, answeringQuestion, stepAdded = intents.Result{}, false, false

		case events.VoiceError:
			if isTeardown(event.Err) {
				continue
			}
			o.callbacks.notice(Notice{
				Kind:    NoticeVoiceFailed,
				Message: "The voice chat was interrupted.",
				Err:     event.Err,
			})
		}
	}

	if answeringQuestion {
		o.walkthrough.ReturnToStep()
	}
	o.mu.Lock()
	current := o.voiceGeneration == generation
	if current {
		o.stopGraceTimerLocked()
	}
	o.mu.Unlock()
	if current {
		o.callbacks.voiceChanged(false)
		o.publishStatus()
	}
}

// scheduleVoiceDisconnect closes a guided voice session once the reply that
// added a step has had time to play. turn_done only means the audio was
// sent, not heard.
func (o *Orchestrator) scheduleVoiceDisconnect(generation uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.voiceGeneration != generation {
		return
	}
	o.stopGraceTimerLocked()

	var timer *time.Timer
	timer = time.AfterFunc(o.graceDelay, func() {
		o.mu.Lock()
		current := o.graceTimer == timer && o.voiceGeneration == generation
		if current {
			o.graceTimer = nil
		}
		o.mu.Unlock()

		if current {
			logger.Info("closing guided voice session after new step")
			o.StopVoice()
		}
	})
	o.graceTimer = timer
}

func (o *Orchestrator) stopGraceTimer(generation uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.voiceGeneration == generation {
		o.stopGraceTimerLocked()
	}
}

func (o *Orchestrator) stopGraceTimerLocked() {
	if o.graceTimer != nil {
		o.graceTimer.Stop()
		o.graceTimer = nil
	}
}
