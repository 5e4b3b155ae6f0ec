// Package miniaudio drives the local microphone and speaker through malgo.
package miniaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-tabletop/core/audio"
)

type Option func(*Client)

// WithSampleRate sets the rate both devices run at.
func WithSampleRate(sampleRate int) Option {
	return func(c *Client) {
		c.sampleRate = sampleRate
	}
}

// Client is both an audio.Microphone and an audio.DrainingSpeaker.
type Client struct {
	// audioContext is only saved to be able to uninitialize it
	audioContext *malgo.AllocatedContext
	sampleRate   int
	playbackClient
	captureClient
}

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{sampleRate: audio.DefaultSampleRate}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := client.captureClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return client, nil
}

// Stream captures microphone audio until ctx is cancelled.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return err
	}
	<-ctx.Done()
	return c.captureClient.Stop()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

func (c *Client) AwaitMark() error {
	return c.playbackClient.AwaitMark()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: c.sampleRate, Format: audio.EncodingLinear16}
}

func (c *Client) Close() error {
	var errs []error
	if err := c.captureClient.Uninit(); err != nil {
		errs = append(errs, err)
	}
	if err := c.playbackClient.Uninit(); err != nil {
		errs = append(errs, err)
	}
	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil {
			errs = append(errs, err)
		}
		c.audioContext.Free()
		c.audioContext = nil
	}
	return errors.Join(errs...)
}
