package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/koscakluka/ema-tabletop/core/voice"
)

const (
	eventSessionUpdate      = "session.update"
	eventSessionCreated     = "session.created"
	eventSessionUpdated     = "session.updated"
	eventInputAudioAppend   = "input_audio_buffer.append"
	eventSpeechStarted      = "input_audio_buffer.speech_started"
	eventUserTranscriptPart = "conversation.item.input_audio_transcription.delta"
	eventUserTranscriptDone = "conversation.item.input_audio_transcription.completed"
	eventTranscriptDelta    = "response.audio_transcript.delta"
	eventTranscriptDone     = "response.audio_transcript.done"
	eventOutputTextDelta    = "response.output_audio_transcript.delta"
	eventOutputTextDone     = "response.output_audio_transcript.done"
	eventAudioDelta         = "response.audio.delta"
	eventOutputAudioDelta   = "response.output_audio.delta"
	eventResponseDone       = "response.done"
	eventError              = "error"

	audioFormat        = "pcm16"
	transcriptionModel = "whisper-1"
)

// Error is a failure reported by the realtime server.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime %s: %s", e.Code, e.Message)
	}
	return "realtime: " + e.Message
}

type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *Error `json:"error"`
}

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection       `json:"turn_detection,omitempty"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

func newSessionUpdate(config voice.Config) sessionUpdateEvent {
	return sessionUpdateEvent{
		Type: eventSessionUpdate,
		Session: sessionConfig{
			Modalities:              []string{"audio", "text"},
			Instructions:            config.ComposeInstructions(),
			Voice:                   config.Voice,
			InputAudioFormat:        audioFormat,
			OutputAudioFormat:       audioFormat,
			InputAudioTranscription: &transcriptionConfig{Model: transcriptionModel},
			TurnDetection:           &turnDetection{Type: "server_vad"},
		},
	}
}

// decodeServerEvent maps a server frame to a voice message. Frames that carry
// nothing the session cares about report false.
func decodeServerEvent(data []byte) (voice.Message, bool, error) {
	var event serverEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return voice.Message{}, false, fmt.Errorf("failed to decode realtime event: %w", err)
	}

	switch event.Type {
	case eventSpeechStarted:
		return voice.Message{Type: voice.MessageUserSpeechStarted}, true, nil
	case eventUserTranscriptPart:
		return voice.Message{Type: voice.MessageUserTranscriptDelta, Text: event.Delta}, true, nil
	case eventUserTranscriptDone:
		return voice.Message{Type: voice.MessageUserTranscriptCompleted, Text: event.Transcript}, true, nil
	case eventTranscriptDelta, eventOutputTextDelta:
		return voice.Message{Type: voice.MessageAssistantTranscriptDelta, Text: event.Delta}, true, nil
	case eventTranscriptDone, eventOutputTextDone:
		return voice.Message{Type: voice.MessageAssistantTranscriptDone, Text: event.Transcript}, true, nil
	case eventAudioDelta, eventOutputAudioDelta:
		chunk, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			return voice.Message{}, false, fmt.Errorf("failed to decode assistant audio: %w", err)
		}
		return voice.Message{Type: voice.MessageAssistantAudio, Audio: chunk}, true, nil
	case eventResponseDone:
		return voice.Message{Type: voice.MessageResponseDone}, true, nil
	case eventError:
		serverErr := event.Error
		if serverErr == nil {
			serverErr = &Error{Message: "unknown error"}
		}
		return voice.Message{Type: voice.MessageError, Err: serverErr, Text: serverErr.Message}, true, nil
	}
	return voice.Message{}, false, nil
}
