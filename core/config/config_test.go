package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TABLETOP_BACKEND_URL", "TABLETOP_BACKEND_API_KEY", "TABLETOP_VOICE",
		"TABLETOP_SPEECH_PROVIDER", "DEEPGRAM_API_KEY", "TABLETOP_REALTIME_URL",
		"TABLETOP_TTS_TIMEOUT", "TABLETOP_VOICE_GRACE_DELAY", "TABLETOP_PLAYBACK_TAIL",
		"TABLETOP_DICTATION", "TABLETOP_SAMPLE_RATE", "TABLETOP_AUDIO_DEVICE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
	assert.Equal(t, SpeechProviderBackend, cfg.SpeechProvider)
	assert.Equal(t, 30*time.Second, cfg.TTSTimeout)
	assert.Equal(t, 3*time.Second, cfg.VoiceGraceDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.PlaybackTail)
	assert.False(t, cfg.DictationEnabled)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, AudioDeviceMiniaudio, cfg.AudioDevice)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLETOP_BACKEND_URL", "https://api.example.com")
	t.Setenv("TABLETOP_SPEECH_PROVIDER", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("TABLETOP_VOICE_GRACE_DELAY", "1500ms")
	t.Setenv("TABLETOP_SAMPLE_RATE", "24000")
	t.Setenv("TABLETOP_AUDIO_DEVICE", "portaudio")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
	assert.Equal(t, SpeechProviderDeepgram, cfg.SpeechProvider)
	assert.Equal(t, 1500*time.Millisecond, cfg.VoiceGraceDelay)
	assert.True(t, cfg.DictationEnabled, "dictation defaults on when a deepgram key is present")
	assert.Equal(t, 24000, cfg.SampleRate)
	assert.Equal(t, AudioDevicePortaudio, cfg.AudioDevice)
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLETOP_TTS_TIMEOUT", "soon")
	t.Setenv("TABLETOP_DICTATION", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TABLETOP_TTS_TIMEOUT")
	assert.Contains(t, err.Error(), "TABLETOP_DICTATION")
}

func TestValidate(t *testing.T) {
	valid := Config{
		BackendURL:     "http://localhost:8080",
		SpeechProvider: SpeechProviderBackend,
		TTSTimeout:     time.Second,
		SampleRate:     16000,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative backend url", func(c *Config) { c.BackendURL = "/api" }},
		{"deepgram without key", func(c *Config) { c.SpeechProvider = SpeechProviderDeepgram }},
		{"unknown provider", func(c *Config) { c.SpeechProvider = "carrier-pigeon" }},
		{"dictation without key", func(c *Config) { c.DictationEnabled = true }},
		{"zero timeout", func(c *Config) { c.TTSTimeout = 0 }},
		{"negative grace delay", func(c *Config) { c.VoiceGraceDelay = -time.Second }},
		{"unknown audio device", func(c *Config) { c.AudioDevice = "tin-can" }},
		{"odd sample rate", func(c *Config) { c.SampleRate = 44100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("TABLETOP_VOICE"))
	require.NoError(t, os.Unsetenv("TABLETOP_SAMPLE_RATE"))
	t.Setenv("TABLETOP_BACKEND_URL", "https://api.example.com")

	dir := t.TempDir()
	dotEnv := "TABLETOP_VOICE=shimmer\nTABLETOP_SAMPLE_RATE=24000\nTABLETOP_BACKEND_URL=http://ignored:1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotEnv), 0o600))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "shimmer", cfg.Voice)
	assert.Equal(t, 24000, cfg.SampleRate)
	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
}
