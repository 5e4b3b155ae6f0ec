package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	device *malgo.Device

	mu sync.Mutex

	bufferMu sync.Mutex
	pending  []byte
	marks    []playbackMark
}

type playbackMark struct {
	// position is the number of pending bytes that have to play before the
	// mark is reached
	position int
	reached  chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, sampleRate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(sampleRate / 10) // ~100ms of audio
	config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: c.fill(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	c.bufferMu.Lock()
	c.pending = append(c.pending, audio...)
	c.bufferMu.Unlock()
	return nil
}

// ClearBuffer drops unplayed audio. Waiters on marks are released.
func (c *playbackClient) ClearBuffer() {
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()

	c.pending = nil
	for _, mark := range c.marks {
		close(mark.reached)
	}
	c.marks = nil
}

// AwaitMark blocks until everything sent so far has been played or cleared.
func (c *playbackClient) AwaitMark() error {
	c.bufferMu.Lock()
	if len(c.pending) == 0 {
		c.bufferMu.Unlock()
		return nil
	}
	mark := playbackMark{position: len(c.pending), reached: make(chan struct{})}
	c.marks = append(c.marks, mark)
	c.bufferMu.Unlock()

	<-mark.reached
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	c.device.Uninit()
	c.device = nil

	c.ClearBuffer()
	return nil
}

func (c *playbackClient) fill(bytesPerFrame int) malgo.DataProc {
	return func(output, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.bufferMu.Lock()
		defer c.bufferMu.Unlock()

		n := copy(output[:min(need, len(output))], c.pending)
		clear(output[n:min(need, len(output))])
		c.pending = c.pending[n:]

		kept := c.marks[:0]
		for _, mark := range c.marks {
			mark.position -= n
			if mark.position <= 0 {
				close(mark.reached)
				continue
			}
			kept = append(kept, mark)
		}
		c.marks = kept
	}
}
