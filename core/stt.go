package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
)

const (
	microphoneStopTimeout  = time.Second
	transcriptFlushTimeout = 2 * time.Second
)

// dictation turns microphone audio into draft text for the typed input.
type dictation struct {
	mu      sync.Mutex
	client  Transcriber
	session *dictationSession
}

type dictationSession struct {
	lease        *audio.Lease
	cancelMic    context.CancelFunc
	cancelStream context.CancelFunc
	micDone      chan struct{}
	// abandoned sessions were taken over and their late transcripts are
	// dropped.
	abandoned bool
	committed []string
	interim   string
}

func (d *dictation) set(client Transcriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
}

func (d *dictation) isConfigured() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

func (d *dictation) active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != nil
}

func (s *dictationSession) draft() string {
	parts := make([]string, 0, len(s.committed)+1)
	parts = append(parts, s.committed...)
	if s.interim != "" {
		parts = append(parts, s.interim)
	}
	return strings.Join(parts, " ")
}

// StartDictation starts transcribing the microphone into a draft. It cannot
// start while a voice session is live or starting, and takes the
// microphone away from a reply being read aloud.
func (o *Orchestrator) StartDictation(ctx context.Context) error {
	if !o.dictation.isConfigured() || o.microphone == nil {
		return ErrDictationUnavailable
	}
	o.mu.Lock()
	closed := o.closed
	game := o.game
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if o.voiceBusy() {
		return ErrVoiceChannelActive
	}
	if o.dictation.active() {
		return nil
	}
	if game == "" {
		game = o.walkthrough.Game()
	}

	ctx, span := tracer.Start(ctx, "start dictation")
	defer span.End()

	session := &dictationSession{}
	lease, ok := o.arbiter.AcquireUnless(audio.OwnerDictation,
		func() { o.stopDictationSession(session, false) },
		audio.OwnerVoiceChannel)
	if !ok {
		return ErrVoiceChannelActive
	}
	session.lease = lease

	streamCtx, cancelStream := context.WithCancel(o.baseContext)
	micCtx, cancelMic := context.WithCancel(streamCtx)
	session.cancelStream = cancelStream
	session.cancelMic = cancelMic

	o.dictation.mu.Lock()
	if o.dictation.session != nil || !lease.Active() {
		o.dictation.mu.Unlock()
		cancelStream()
		lease.Release()
		return nil
	}
	o.dictation.session = session
	client := o.dictation.client
	o.dictation.mu.Unlock()

	var keyterms []string
	if game != "" {
		keyterms = append(keyterms, game)
	}
	err := client.Transcribe(streamCtx,
		speechtotext.WithEncodingInfo(o.microphone.EncodingInfo()),
		speechtotext.WithKeyterms(keyterms...),
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			o.updateDraft(session, func(s *dictationSession) { s.interim = transcript })
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			o.updateDraft(session, func(s *dictationSession) {
				s.interim = ""
				if transcript = strings.TrimSpace(transcript); transcript != "" {
					s.committed = append(s.committed, transcript)
				}
			})
		}),
		speechtotext.WithErrorCallback(func(err error) {
			if isTeardown(err) {
				return
			}
			o.callbacks.notice(Notice{
				Kind:    NoticeDictationFailed,
				Message: "Dictation stopped unexpectedly.",
				Err:     err,
			})
			go o.stopDictationSession(session, false)
		}),
	)
	if err != nil {
		err = fmt.Errorf("failed to start dictation: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.stopDictationSession(session, false)
		o.callbacks.notice(Notice{
			Kind:    NoticeDictationFailed,
			Message: "Couldn't start dictation.",
			Err:     err,
		})
		return err
	}

	micDone := make(chan struct{})
	o.dictation.mu.Lock()
	if o.dictation.session != session {
		o.dictation.mu.Unlock()
		cancelStream()
		return nil
	}
	session.micDone = micDone
	o.dictation.mu.Unlock()

	go func() {
		defer close(micDone)
		err := o.microphone.Stream(micCtx, func(chunk []byte) {
			if err := client.SendAudio(chunk); err != nil {
				logger.Debug("dropping dictation audio", "error", err)
			}
		})
		if err != nil && !isTeardown(err) {
			logger.Error("microphone stopped during dictation", "error", err)
		}
	}()
	return nil
}

// StopDictation stops listening, waits briefly for the last words to be
// transcribed and returns the draft. The draft is cleared.
func (o *Orchestrator) StopDictation() string {
	o.dictation.mu.Lock()
	session := o.dictation.session
	o.dictation.mu.Unlock()
	if session == nil {
		return ""
	}
	return o.stopDictationSession(session, true)
}

// stopDictationSession ends session if it is still the current one. Without
// flush the stream is dropped without waiting for the service.
func (o *Orchestrator) stopDictationSession(session *dictationSession, flush bool) string {
	o.dictation.mu.Lock()
	if o.dictation.session != session {
		o.dictation.mu.Unlock()
		return ""
	}
	o.dictation.session = nil
	session.abandoned = !flush
	client := o.dictation.client
	micDone := session.micDone
	o.dictation.mu.Unlock()

	session.cancelMic()
	if micDone != nil {
		select {
		case <-micDone:
		case <-time.After(microphoneStopTimeout):
			logger.Warn("microphone did not stop in time")
		}
	}

	closeStream := func() {
		ctx, cancel := context.WithTimeout(context.Background(), transcriptFlushTimeout)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			logger.Warn("failed to close dictation stream", "error", err)
		}
		session.cancelStream()
	}
	if flush {
		closeStream()
	} else {
		go closeStream()
	}
	session.lease.Release()

	o.dictation.mu.Lock()
	draft := session.draft()
	session.committed, session.interim = nil, ""
	session.abandoned = true
	o.dictation.mu.Unlock()

	o.callbacks.draftChanged("")
	return draft
}

func (o *Orchestrator) updateDraft(session *dictationSession, update func(*dictationSession)) {
	o.dictation.mu.Lock()
	if session.abandoned {
		o.dictation.mu.Unlock()
		return
	}
	update(session)
	draft := session.draft()
	o.dictation.mu.Unlock()

	o.callbacks.draftChanged(draft)
}
