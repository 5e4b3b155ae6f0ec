package audio

import "context"

// Microphone captures audio until ctx is cancelled. Stream returns once
// capture has stopped.
type Microphone interface {
	EncodingInfo() EncodingInfo
	Stream(ctx context.Context, onAudio func([]byte)) error
}

// Speaker plays audio pushed into it.
type Speaker interface {
	EncodingInfo() EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

// DrainingSpeaker can report when everything sent so far was played.
type DrainingSpeaker interface {
	Speaker
	AwaitMark() error
}
