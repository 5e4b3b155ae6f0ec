// Package setup builds an orchestrator on the system's audio device from
// environment configuration.
package setup

import (
	"fmt"

	orchestration "github.com/koscakluka/ema-tabletop/core"
	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/audio/miniaudio"
	"github.com/koscakluka/ema-tabletop/core/audio/portaudio"
	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/config"
	"github.com/koscakluka/ema-tabletop/core/speech"
	sttdeepgram "github.com/koscakluka/ema-tabletop/core/speechtotext/deepgram"
	ttsdeepgram "github.com/koscakluka/ema-tabletop/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-tabletop/core/voice/realtime"
)

type audioDevice interface {
	audio.Microphone
	audio.DrainingSpeaker
	Close() error
}

func openAudioDevice(cfg *config.Config) (audioDevice, error) {
	if cfg.AudioDevice == config.AudioDevicePortaudio {
		return portaudio.NewClient(portaudio.WithSampleRate(cfg.SampleRate))
	}
	return miniaudio.NewClient(miniaudio.WithSampleRate(cfg.SampleRate))
}

// New builds an orchestrator on the system's default audio device with the
// services named in cfg. Options passed here are applied after the
// configured ones.
func New(cfg *config.Config, opts ...orchestration.OrchestratorOption) (*orchestration.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := backend.NewClient(cfg.BackendURL, backend.WithAPIKey(cfg.BackendAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	device, err := openAudioDevice(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}

	var synthesizer speech.Synthesizer = client
	if cfg.SpeechProvider == config.SpeechProviderDeepgram {
		// the voice is chosen per request, unknown names fall back to the
		// client default
		synthesizer, err = ttsdeepgram.NewSpeechClient("",
			ttsdeepgram.WithAPIKey(cfg.DeepgramAPIKey),
			ttsdeepgram.WithEncodingInfo(device.EncodingInfo()),
		)
		if err != nil {
			_ = device.Close()
			return nil, fmt.Errorf("failed to create deepgram speech client: %w", err)
		}
	}

	var transportOptions []realtime.Option
	if cfg.RealtimeURL != "" {
		transportOptions = append(transportOptions, realtime.WithURL(cfg.RealtimeURL))
	}

	configured := []orchestration.OrchestratorOption{
		orchestration.WithBackend(client),
		orchestration.WithMicrophone(device),
		orchestration.WithSpeaker(device),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithVoiceChannel(client, realtime.NewTransport(transportOptions...)),
		orchestration.WithVoiceName(cfg.Voice),
		orchestration.WithSpeechTimeout(cfg.TTSTimeout),
		orchestration.WithPlaybackTail(cfg.PlaybackTail),
		orchestration.WithGraceDelay(cfg.VoiceGraceDelay),
		orchestration.WithCloser(device.Close),
	}
	if cfg.DictationEnabled {
		transcriber, err := sttdeepgram.NewTranscriptionClient(sttdeepgram.WithAPIKey(cfg.DeepgramAPIKey))
		if err != nil {
			_ = device.Close()
			return nil, fmt.Errorf("failed to create deepgram transcription client: %w", err)
		}
		configured = append(configured, orchestration.WithTranscriber(transcriber))
	}

	return orchestration.NewOrchestrator(append(configured, opts...)...), nil
}
