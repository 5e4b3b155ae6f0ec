package events

const (
	// KindAssistantTranscriptDelta identifies a piece of the spoken reply.
	KindAssistantTranscriptDelta Kind = "voice_assistant.transcript_delta"
	// KindAssistantTranscriptDone identifies the full spoken reply.
	KindAssistantTranscriptDone Kind = "voice_assistant.transcript_done"
)

// AssistantTranscriptDelta carries one append-only piece of the reply.
type AssistantTranscriptDelta struct {
	Base
	Delta string
}

// NewAssistantTranscriptDelta creates an assistant transcript delta event.
func NewAssistantTranscriptDelta(delta string) AssistantTranscriptDelta {
	return AssistantTranscriptDelta{Base: NewBase(KindAssistantTranscriptDelta), Delta: delta}
}

// AssistantTranscriptDone carries the full text of the spoken reply.
type AssistantTranscriptDone struct {
	Base
	Transcript string
}

// NewAssistantTranscriptDone creates an assistant transcript done event.
func NewAssistantTranscriptDone(transcript string) AssistantTranscriptDone {
	return AssistantTranscriptDone{Base: NewBase(KindAssistantTranscriptDone), Transcript: transcript}
}
