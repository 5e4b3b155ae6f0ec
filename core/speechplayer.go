package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"github.com/koscakluka/ema-tabletop/core/transcript"
)

var ErrSpeechUnavailable = errors.New("text-to-speech is not configured")

// speakOnce reads an assistant message aloud when audio responses are on
// and no voice session is live or starting. The message is marked as
// spoken before playback is requested, so a repeated trigger is ignored.
func (o *Orchestrator) speakOnce(message transcript.Message) {
	if message.Content == "" || !o.canSpeak() {
		return
	}
	o.mu.Lock()
	enabled := o.audioResponses
	o.mu.Unlock()
	if !enabled {
		return
	}
	if !o.spoken.MarkIfNew(message.ID) {
		return
	}
	o.startSpeaking(message, true)
}

// SpeakMessage reads one transcript message aloud on request, even with
// audio responses off. A message is never read twice; false means it was
// already spoken.
func (o *Orchestrator) SpeakMessage(id string) (bool, error) {
	if o.speech == nil {
		return false, ErrSpeechUnavailable
	}
	if o.voiceBusy() {
		return false, ErrVoiceChannelActive
	}
	message, ok := o.transcript.Find(id)
	if !ok {
		return false, fmt.Errorf("unknown message %q", id)
	}
	if message.Role != transcript.RoleAssistant || !o.canSpeak() {
		return false, nil
	}
	if !o.spoken.MarkIfNew(message.ID) {
		return false, nil
	}
	o.startSpeaking(message, false)
	return true, nil
}

// StopSpeaking cuts off the reply being read aloud, including one whose
// playback was requested but has not started yet.
func (o *Orchestrator) StopSpeaking() {
	o.mu.Lock()
	o.speechGeneration++
	cancel := o.cancelSpeech
	o.cancelSpeech = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if o.speech != nil {
		o.speech.Stop()
	}
}

func (o *Orchestrator) canSpeak() bool {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	return !closed && o.speech != nil && !o.voiceBusy() && o.arbiter.Owner() != audio.OwnerVoiceChannel
}

// startSpeaking plays message in the background. A newer message cuts off
// the one still playing. Automatic replies are dropped if audio responses
// were turned off before playback began.
func (o *Orchestrator) startSpeaking(message transcript.Message, automatic bool) {
	done := make(chan struct{})
	o.mu.Lock()
	previous := o.speakDone
	cancelPrevious := o.cancelSpeech
	wasSpeaking := o.speaking
	o.speakDone = done
	o.cancelSpeech = nil
	o.speaking = true
	generation := o.speechGeneration
	instructions := o.speakingInstructions
	o.mu.Unlock()

	if cancelPrevious != nil {
		cancelPrevious()
	}
	o.publishStatus()
	if !wasSpeaking {
		o.callbacks.speakingChanged(true)
	}

	goWorker(o.baseContext, "speech", func(ctx context.Context) error {
		defer o.finishSpeaking(done)

		if previous != nil {
			o.speech.Stop()
			<-previous
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		o.mu.Lock()
		allowed := !o.closed &&
			o.speakDone == done &&
			o.speechGeneration == generation &&
			(!automatic || o.audioResponses)
		if allowed {
			o.cancelSpeech = cancel
		}
		o.mu.Unlock()
		if !allowed {
			logger.Debug("dropping reply stopped before playback", "message", message.ID)
			return nil
		}

		err := o.speech.Speak(ctx, message.Content, speech.WithInstructions(instructions))
		switch {
		case err == nil, isTeardown(err):
			return nil
		case errors.Is(err, speech.ErrAlreadySpeaking):
			logger.Debug("skipping speech, another reply is playing", "message", message.ID)
			return nil
		}
		o.callbacks.notice(Notice{
			Kind:    NoticeSpeechFailed,
			Message: "Couldn't read the reply aloud.",
			Err:     err,
		})
		return nil
	})
}

func (o *Orchestrator) finishSpeaking(done chan struct{}) {
	close(done)

	o.mu.Lock()
	last := o.speakDone == done
	if last {
		o.speakDone = nil
		o.cancelSpeech = nil
		o.speaking = false
	}
	o.mu.Unlock()

	if last {
		o.publishStatus()
		o.callbacks.speakingChanged(false)
	}
}
