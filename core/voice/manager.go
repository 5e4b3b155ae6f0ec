package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

type Option func(*Manager)

func WithMicrophone(microphone audio.Microphone) Option {
	return func(m *Manager) {
		m.microphone = microphone
	}
}

// WithSpeaker sets where the assistant's voice is played.
func WithSpeaker(speaker audio.Speaker) Option {
	return func(m *Manager) {
		m.speaker = speaker
	}
}

// Manager starts and stops voice sessions. At most one session exists at a
// time.
type Manager struct {
	bootstrapper Bootstrapper
	transport    Transport
	arbiter      *audio.Arbiter
	microphone   audio.Microphone
	speaker      audio.Speaker

	mu          sync.Mutex
	generation  uint64
	session     *Session
	cancelStart context.CancelFunc
}

func NewManager(bootstrapper Bootstrapper, transport Transport, arbiter *audio.Arbiter, opts ...Option) *Manager {
	m := &Manager{
		bootstrapper: bootstrapper,
		transport:    transport,
		arbiter:      arbiter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.session != nil && !m.session.Closed():
		return StateActive
	case m.cancelStart != nil:
		return StateStarting
	}
	return StateIdle
}

// Session returns the live session, if any.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.Closed() {
		return nil
	}
	return m.session
}

// Start replaces any existing session with a new one. Whoever held the audio
// devices is torn down before negotiation begins. On failure everything
// acquired is released and no retry is made.
func (m *Manager) Start(ctx context.Context, config Config) (*Session, error) {
	ctx, span := tracer.Start(ctx, "start voice session")
	defer span.End()
	span.SetAttributes(
		attribute.String("voice.name", config.Voice),
		attribute.Bool("voice.guided", config.Context.Guided),
	)

	m.mu.Lock()
	m.stopLocked()
	m.generation++
	generation := m.generation
	startCtx, cancel := context.WithCancel(ctx)
	m.cancelStart = cancel
	m.mu.Unlock()
	defer cancel()

	lease := m.arbiter.Acquire(audio.OwnerVoiceChannel, func() { m.stopGeneration(generation) })

	fail := func(err error) (*Session, error) {
		lease.Release()
		m.mu.Lock()
		if m.generation == generation {
			m.cancelStart = nil
		}
		m.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	interrupted := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if startCtx.Err() != nil {
			return ErrSuperseded
		}
		return err
	}

	credential, err := m.bootstrapper.CreateVoiceSession(startCtx, BootstrapRequest{
		Voice:        config.Voice,
		Instructions: config.ComposeInstructions(),
		Context:      config.Context,
	})
	if err != nil {
		return fail(interrupted(fmt.Errorf("failed to create voice session: %w", err)))
	}
	if credential.Value == "" {
		return fail(errors.New("voice session credential is empty"))
	}

	conn, err := m.transport.Connect(startCtx, credential, config)
	if err != nil {
		return fail(interrupted(fmt.Errorf("failed to connect voice session: %w", err)))
	}

	m.mu.Lock()
	if m.generation != generation || !lease.Active() {
		m.mu.Unlock()
		_ = conn.Close()
		return fail(ErrSuperseded)
	}
	session := newSession(conn, lease, m.speaker)
	session.start(m.microphone)
	m.session = session
	m.cancelStart = nil
	m.mu.Unlock()

	logger.Info("voice session started")
	return session, nil
}

// Stop ends the current session or cancels one being started. It is safe to
// call at any time.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopGeneration(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == generation {
		m.stopLocked()
	}
}

func (m *Manager) stopLocked() {
	m.generation++
	if m.cancelStart != nil {
		m.cancelStart()
		m.cancelStart = nil
	}
	if m.session != nil {
		m.session.close()
		m.session = nil
		logger.Info("voice session stopped")
	}
}
