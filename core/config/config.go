// Package config reads the companion's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type SpeechProvider string

const (
	SpeechProviderBackend  SpeechProvider = "backend"
	SpeechProviderDeepgram SpeechProvider = "deepgram"
)

// AudioDevice selects the library that drives the microphone and speaker.
type AudioDevice string

const (
	AudioDeviceMiniaudio AudioDevice = "miniaudio"
	AudioDevicePortaudio AudioDevice = "portaudio"
)

type Config struct {
	BackendURL    string
	BackendAPIKey string

	Voice          string
	SpeechProvider SpeechProvider
	DeepgramAPIKey string
	// RealtimeURL overrides the realtime transport endpoint; empty keeps the
	// transport default.
	RealtimeURL string

	TTSTimeout      time.Duration
	VoiceGraceDelay time.Duration
	PlaybackTail    time.Duration

	DictationEnabled bool
	AudioDevice      AudioDevice
	SampleRate       int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads all env vars and builds the config. Malformed values are
// reported together with any validation failure.
func Load() (*Config, error) {
	// a .env file in the working directory fills in what the environment
	// does not set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		BackendURL:    getEnv("TABLETOP_BACKEND_URL", "http://localhost:8080"),
		BackendAPIKey: getEnv("TABLETOP_BACKEND_API_KEY", ""),

		Voice:          getEnv("TABLETOP_VOICE", "alloy"),
		SpeechProvider: SpeechProvider(getEnv("TABLETOP_SPEECH_PROVIDER", string(SpeechProviderBackend))),
		DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		RealtimeURL:    getEnv("TABLETOP_REALTIME_URL", ""),
		AudioDevice:    AudioDevice(getEnv("TABLETOP_AUDIO_DEVICE", string(AudioDeviceMiniaudio))),
	}

	var errs []error
	var err error
	if cfg.TTSTimeout, err = getDurationEnv("TABLETOP_TTS_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.VoiceGraceDelay, err = getDurationEnv("TABLETOP_VOICE_GRACE_DELAY", 3*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlaybackTail, err = getDurationEnv("TABLETOP_PLAYBACK_TAIL", 300*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.DictationEnabled, err = getBoolEnv("TABLETOP_DICTATION", cfg.DeepgramAPIKey != ""); err != nil {
		errs = append(errs, err)
	}
	if cfg.SampleRate, err = getIntEnv("TABLETOP_SAMPLE_RATE", 16000); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("TABLETOP_BACKEND_URL must be an absolute url, got %q", c.BackendURL))
	}
	switch c.SpeechProvider {
	case SpeechProviderBackend:
	case SpeechProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY must be set for the deepgram speech provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TABLETOP_SPEECH_PROVIDER %q", c.SpeechProvider))
	}
	if c.DictationEnabled && c.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY must be set when dictation is enabled"))
	}
	if c.TTSTimeout <= 0 {
		errs = append(errs, errors.New("TABLETOP_TTS_TIMEOUT must be positive"))
	}
	if c.VoiceGraceDelay < 0 || c.PlaybackTail < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	switch c.AudioDevice {
	case "", AudioDeviceMiniaudio, AudioDevicePortaudio:
	default:
		errs = append(errs, fmt.Errorf("unknown TABLETOP_AUDIO_DEVICE %q", c.AudioDevice))
	}
	switch c.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		errs = append(errs, fmt.Errorf("unsupported TABLETOP_SAMPLE_RATE %d", c.SampleRate))
	}
	return errors.Join(errs...)
}
