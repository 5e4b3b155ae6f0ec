// Package speechtotext defines how streaming transcription is configured.
package speechtotext

import "github.com/koscakluka/ema-tabletop/core/audio"

type TranscriptionOptions struct {
	// InterimTranscriptionCallback receives the whole utterance so far,
	// including words that may still change.
	InterimTranscriptionCallback func(transcript string)
	// TranscriptionCallback receives each finished utterance.
	TranscriptionCallback func(transcript string)
	SpeechEndedCallback   func()
	ErrorCallback         func(err error)

	EncodingInfo audio.EncodingInfo
	Language     string
	// Keyterms boosts recognition of uncommon words such as game names.
	Keyterms []string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithKeyterms(keyterms ...string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Keyterms = append(o.Keyterms, keyterms...)
	}
}
