package events

const (
	// KindUserSpeechStarted identifies detected start of user speech.
	KindUserSpeechStarted Kind = "voice_user.speech_started"
	// KindUserTranscriptPartial identifies an in-progress user transcript.
	KindUserTranscriptPartial Kind = "voice_user.transcript_partial"
	// KindUserTranscriptFinal identifies a finished user transcript.
	KindUserTranscriptFinal Kind = "voice_user.transcript_final"
)

// UserSpeechStarted marks that the user started talking.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserTranscriptPartial carries the user transcript accumulated so far.
type UserTranscriptPartial struct {
	Base
	Transcript string
}

// NewUserTranscriptPartial creates a partial user transcript event.
func NewUserTranscriptPartial(transcript string) UserTranscriptPartial {
	return UserTranscriptPartial{Base: NewBase(KindUserTranscriptPartial), Transcript: transcript}
}

// UserTranscriptFinal carries the terminal user transcript of an utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

// NewUserTranscriptFinal creates a final user transcript event.
func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}
