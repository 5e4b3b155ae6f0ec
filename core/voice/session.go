package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/events"
)

const (
	eventBufferSize = 64
	micStopTimeout  = time.Second
)

var ErrSessionClosed = errors.New("voice session closed")

// Session is one live voice conversation. Its event stream is closed when
// the session ends for any reason.
type Session struct {
	conn    PeerConnection
	lease   *audio.Lease
	speaker audio.Speaker

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan events.Event
	done      chan struct{}
	micDone   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// owned by the read loop
	userTranscript      strings.Builder
	assistantTranscript strings.Builder
	assistantDone       bool
}

func newSession(conn PeerConnection, lease *audio.Lease, speaker audio.Speaker) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:    conn,
		lease:   lease,
		speaker: speaker,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan events.Event, eventBufferSize),
		done:    make(chan struct{}),
		micDone: make(chan struct{}),
	}
}

func (s *Session) Events() <-chan events.Event {
	return s.events
}

// Done is closed once the event stream has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// UpdateContext pushes new instructions to the remote assistant.
func (s *Session) UpdateContext(config Config) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.conn.UpdateSession(config)
}

func (s *Session) start(microphone audio.Microphone) {
	go s.readLoop()

	if microphone == nil {
		close(s.micDone)
		return
	}
	go func() {
		defer close(s.micDone)
		err := microphone.Stream(s.ctx, func(chunk []byte) {
			if err := s.conn.SendAudio(chunk); err != nil && s.ctx.Err() == nil {
				logger.Debug("failed to forward microphone audio", "error", err)
			}
		})
		if err != nil && s.ctx.Err() == nil {
			logger.Warn("microphone stream stopped", "error", err)
		}
	}()
}

// close tears the session down. The microphone has stopped by the time it
// returns; the network connection is closed without waiting for the peer.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if err := s.conn.Close(); err != nil {
			logger.Debug("failed to close voice connection", "error", err)
		}
		if s.speaker != nil {
			s.speaker.ClearBuffer()
		}
		s.lease.Release()

		select {
		case <-s.micDone:
		case <-time.After(micStopTimeout):
			logger.Warn("microphone did not stop in time")
		}
	})
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case <-s.ctx.Done():
			return
		case message, ok := <-s.conn.Messages():
			if !ok {
				if s.ctx.Err() == nil {
					s.emit(events.NewVoiceError(ErrConnectionLost))
					go s.close()
				}
				return
			}
			if !s.handle(message) {
				go s.close()
				return
			}
		}
	}
}

func (s *Session) handle(message Message) bool {
	switch message.Type {
	case MessageUserSpeechStarted:
		if s.speaker != nil {
			s.speaker.ClearBuffer()
		}
		return s.emit(events.NewUserSpeechStarted())

	case MessageUserTranscriptDelta:
		s.userTranscript.WriteString(message.Text)
		return s.emit(events.NewUserTranscriptPartial(s.userTranscript.String()))

	case MessageUserTranscriptCompleted:
		transcript := message.Text
		if transcript == "" {
			transcript = s.userTranscript.String()
		}
		s.userTranscript.Reset()
		return s.emit(events.NewUserTranscriptFinal(strings.TrimSpace(transcript)))

	case MessageAssistantTranscriptDelta:
		s.assistantTranscript.WriteString(message.Text)
		return s.emit(events.NewAssistantTranscriptDelta(message.Text))

	case MessageAssistantTranscriptDone:
		if s.assistantDone {
			logger.Debug("ignoring repeated assistant transcript in the same turn")
			return true
		}
		return s.finishAssistantTranscript(message.Text)

	case MessageAssistantAudio:
		if s.speaker != nil && len(message.Audio) > 0 {
			if err := s.speaker.SendAudio(message.Audio); err != nil {
				logger.Debug("failed to play assistant audio", "error", err)
			}
		}
		return true

	case MessageResponseDone:
		if !s.assistantDone && !s.finishAssistantTranscript("") {
			return false
		}
		s.assistantDone = false
		return s.emit(events.NewTurnDone())

	case MessageError:
		err := message.Err
		if err == nil {
			err = errors.New(message.Text)
		}
		s.emit(events.NewVoiceError(err))
		return false
	}
	return true
}

func (s *Session) finishAssistantTranscript(text string) bool {
	if text == "" {
		text = s.assistantTranscript.String()
	}
	s.assistantTranscript.Reset()
	s.assistantDone = true
	return s.emit(events.NewAssistantTranscriptDone(strings.TrimSpace(text)))
}

// emit blocks until the consumer takes the event or the session is closed.
func (s *Session) emit(event events.Event) bool {
	select {
	case s.events <- event:
		return true
	case <-s.ctx.Done():
		return false
	}
}
