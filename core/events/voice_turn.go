package events

const (
	// KindTurnDone identifies the end of an assistant response.
	KindTurnDone Kind = "voice_turn.done"
	// KindVoiceError identifies a failed voice session.
	KindVoiceError Kind = "voice_session.error"
)

// TurnDone marks that the assistant finished responding.
type TurnDone struct{ Base }

// NewTurnDone creates a turn done event.
func NewTurnDone() TurnDone {
	return TurnDone{Base: NewBase(KindTurnDone)}
}

// VoiceError carries the failure that ended a voice session.
type VoiceError struct {
	Base
	Err error
}

// NewVoiceError creates a voice session error event.
func NewVoiceError(err error) VoiceError {
	return VoiceError{Base: NewBase(KindVoiceError), Err: err}
}

func (e VoiceError) Error() string {
	if e.Err == nil {
		return "voice session failed"
	}
	return e.Err.Error()
}

func (e VoiceError) Unwrap() error { return e.Err }
