package orchestration

import (
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
)

// callbacks holds the UI hooks. Every hook is optional and is never called
// with the orchestrator lock held.
type callbacks struct {
	onTranscript     func(message transcript.Message)
	onStatus         func(status Status)
	onNotice         func(notice Notice)
	onStep           func(state walkthrough.State)
	onSpeaking       func(isSpeaking bool)
	onVoice          func(isActive bool)
	onVoicePartial   func(transcript string)
	onDraft          func(draft string)
	onAudioResponses func(enabled bool)
}

func (c callbacks) transcriptAppended(message transcript.Message) {
	if c.onTranscript != nil {
		c.onTranscript(message)
	}
}

func (c callbacks) statusChanged(status Status) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c callbacks) notice(notice Notice) {
	logger.Warn("notice", "kind", string(notice.Kind), "message", notice.Message, "error", notice.Err)
	if c.onNotice != nil {
		c.onNotice(notice)
	}
}

func (c callbacks) stepChanged(state walkthrough.State) {
	if c.onStep != nil {
		c.onStep(state)
	}
}

func (c callbacks) speakingChanged(isSpeaking bool) {
	if c.onSpeaking != nil {
		c.onSpeaking(isSpeaking)
	}
}

func (c callbacks) voiceChanged(isActive bool) {
	if c.onVoice != nil {
		c.onVoice(isActive)
	}
}

func (c callbacks) voicePartial(transcript string) {
	if c.onVoicePartial != nil {
		c.onVoicePartial(transcript)
	}
}

func (c callbacks) draftChanged(draft string) {
	if c.onDraft != nil {
		c.onDraft(draft)
	}
}

func (c callbacks) audioResponsesChanged(enabled bool) {
	if c.onAudioResponses != nil {
		c.onAudioResponses(enabled)
	}
}
