// Package portaudio drives the default duplex device through PortAudio
// blocking I/O.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-tabletop/core/audio"
)

const defaultFramesPerBuffer = 1024

type Option func(*Client)

func WithSampleRate(sampleRate int) Option {
	return func(c *Client) {
		c.sampleRate = sampleRate
	}
}

// WithFramesPerBuffer sets how many frames each blocking read or write
// moves.
func WithFramesPerBuffer(frames int) Option {
	return func(c *Client) {
		c.framesPerBuffer = frames
	}
}

// Client is both an audio.Microphone and an audio.DrainingSpeaker.
type Client struct {
	sampleRate      int
	framesPerBuffer int
	stream          *portaudio.Stream

	captureMu sync.Mutex
	in        []int16

	playbackMu sync.Mutex
	out        []int16
	pending    []byte
}

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{
		sampleRate:      audio.DefaultSampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.framesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid frames per buffer %d", client.framesPerBuffer)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	client.in = make([]int16, client.framesPerBuffer)
	client.out = make([]int16, client.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(client.sampleRate), client.framesPerBuffer, client.in, client.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	client.stream = stream

	return client, nil
}

// Stream captures microphone audio until ctx is cancelled.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			// overflows drop a buffer, the stream itself is still usable
			if errors.Is(err, portaudio.InputOverflowed) {
				logger.Debug("microphone buffer overflowed")
				continue
			}
			return fmt.Errorf("failed to read from microphone: %w", err)
		}

		chunk := bytes.Buffer{}
		if err := binary.Write(&chunk, binary.LittleEndian, c.in); err != nil {
			return fmt.Errorf("failed to encode microphone audio: %w", err)
		}
		onAudio(chunk.Bytes())
	}
	return nil
}

// SendAudio plays whole buffers right away and keeps the remainder for the
// next call or AwaitMark.
func (c *Client) SendAudio(audio []byte) error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	c.pending = append(c.pending, audio...)
	return c.writeBuffers(false)
}

func (c *Client) ClearBuffer() {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	c.pending = nil
}

// AwaitMark plays what is left, padding the last buffer with silence.
// Blocking writes return once the device accepted the audio.
func (c *Client) AwaitMark() error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	return c.writeBuffers(true)
}

func (c *Client) writeBuffers(padLast bool) error {
	bufferBytes := c.framesPerBuffer * 2
	if padLast && len(c.pending)%bufferBytes != 0 {
		c.pending = append(c.pending, make([]byte, bufferBytes-len(c.pending)%bufferBytes)...)
	}

	for len(c.pending) >= bufferBytes {
		if err := binary.Read(bytes.NewReader(c.pending[:bufferBytes]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode playback audio: %w", err)
		}
		c.pending = c.pending[bufferBytes:]
		if err := c.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write to speaker: %w", err)
		}
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: c.sampleRate, Format: audio.EncodingLinear16}
}

func (c *Client) Close() error {
	var errs []error
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := c.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		c.stream = nil
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
