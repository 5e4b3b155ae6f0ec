// Package speech reads assistant replies aloud through text-to-speech.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/steps"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultTrailingBuffer = 300 * time.Millisecond
)

var (
	ErrAlreadySpeaking = errors.New("speech already in progress")
	ErrTimeout         = errors.New("speech timed out")
)

type SynthesisOptions struct {
	Voice        string
	Instructions string
}

// Synthesizer turns text into audio in the speaker's encoding.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error)
}

type Option func(*Channel)

func WithSpeaker(speaker audio.Speaker) Option {
	return func(c *Channel) {
		c.speaker = speaker
	}
}

func WithVoice(voice string) Option {
	return func(c *Channel) {
		c.voice = voice
	}
}

// WithTimeout bounds one Speak call from synthesis to the end of playback.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Channel) {
		c.timeout = timeout
	}
}

// WithTrailingBuffer sets how long Speak keeps the speaker after the audio
// has drained.
func WithTrailingBuffer(buffer time.Duration) Option {
	return func(c *Channel) {
		c.trailingBuffer = buffer
	}
}

type SpeakOption func(*SynthesisOptions)

func WithInstructions(instructions string) SpeakOption {
	return func(o *SynthesisOptions) {
		o.Instructions = instructions
	}
}

// Channel plays at most one utterance at a time and never while the voice
// channel owns the audio devices.
type Channel struct {
	synthesizer Synthesizer
	arbiter     *audio.Arbiter
	speaker     audio.Speaker

	voice          string
	timeout        time.Duration
	trailingBuffer time.Duration

	inFlight atomic.Bool
	mu       sync.Mutex
	cancel   context.CancelFunc
}

func NewChannel(synthesizer Synthesizer, arbiter *audio.Arbiter, opts ...Option) *Channel {
	c := &Channel{
		synthesizer:    synthesizer,
		arbiter:        arbiter,
		timeout:        DefaultTimeout,
		trailingBuffer: DefaultTrailingBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) IsSpeaking() bool {
	return c.inFlight.Load()
}

// Speak synthesizes text and plays it to completion. It returns nil without
// doing anything when the voice channel owns the audio, and nil when playback
// is stopped or taken over.
func (c *Channel) Speak(ctx context.Context, text string, opts ...SpeakOption) error {
	text = PrepareForSpeech(text)
	if text == "" {
		return nil
	}
	if c.arbiter.Owner() == audio.OwnerVoiceChannel {
		logger.Warn("speak requested while voice channel is active")
		return nil
	}
	ctx, cancel, ok := c.begin(ctx)
	if !ok {
		logger.Warn("speak requested while already speaking")
		return ErrAlreadySpeaking
	}
	defer c.end(cancel)

	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.Int("speech.characters", len(text)))

	lease, ok := c.arbiter.AcquireUnless(audio.OwnerPlayback, c.release(cancel), audio.OwnerVoiceChannel)
	if !ok {
		logger.Warn("voice channel took the audio before speech started")
		return nil
	}
	defer lease.Release()

	options := SynthesisOptions{Voice: c.voice}
	for _, opt := range opts {
		opt(&options)
	}

	// the voice channel may have started, or Stop been called, since the
	// lease was granted
	if !lease.Active() || ctx.Err() != nil {
		return nil
	}
	speech, err := c.synthesizer.Synthesize(ctx, text, options)
	if err != nil {
		return c.finish(ctx, span, fmt.Errorf("failed to synthesize speech: %w", err))
	}
	if !lease.Active() {
		return nil
	}

	return c.finish(ctx, span, c.play(ctx, speech))
}

// begin claims the channel and registers the cancel func in one step, so a
// Stop that arrives before synthesis starts is never lost.
func (c *Channel) begin(ctx context.Context) (context.Context, context.CancelFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.inFlight.Store(true)
	return ctx, cancel, true
}

func (c *Channel) end(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = nil
	c.inFlight.Store(false)
	c.mu.Unlock()
	cancel()
}

func (c *Channel) play(ctx context.Context, speech []byte) error {
	if c.speaker == nil {
		logger.Debug("no speaker configured, dropping synthesized speech")
		return nil
	}
	if err := c.speaker.SendAudio(speech); err != nil {
		return fmt.Errorf("failed to play speech: %w", err)
	}

	drained := make(chan struct{})
	if draining, ok := c.speaker.(audio.DrainingSpeaker); ok {
		go func() {
			defer close(drained)
			if err := draining.AwaitMark(); err != nil {
				logger.Debug("failed waiting for playback mark", "error", err)
			}
		}()
	} else {
		timer := time.AfterFunc(c.speaker.EncodingInfo().Duration(len(speech)), func() { close(drained) })
		defer timer.Stop()
	}

	select {
	case <-drained:
	case <-ctx.Done():
		c.speaker.ClearBuffer()
		return ctx.Err()
	}

	select {
	case <-time.After(c.trailingBuffer):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish maps cancellation to a silent stop and deadline expiry to
// ErrTimeout.
func (c *Channel) finish(ctx context.Context, span trace.Span, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case ctx.Err() != nil:
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Stop cuts off the utterance in progress, if any.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if c.speaker != nil {
		c.speaker.ClearBuffer()
	}
}

func (c *Channel) release(cancel context.CancelFunc) func() {
	return func() {
		cancel()
		if c.speaker != nil {
			c.speaker.ClearBuffer()
		}
	}
}

// PrepareForSpeech strips step leads, footers and markdown so the text reads
// naturally.
func PrepareForSpeech(text string) string {
	return steps.SpokenForm(text)
}
