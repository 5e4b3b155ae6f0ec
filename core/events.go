package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-tabletop/core/actions"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
)

var (
	ErrClosed               = errors.New("orchestrator closed")
	ErrNoBackend            = errors.New("no completion backend configured")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrVoiceChannelActive   = errors.New("voice channel is active")
	ErrTurnInFlight         = errors.New("a response is already pending")
	ErrActionPending        = errors.New("an action is waiting for confirmation")
	ErrNoPendingAction      = errors.New("no action is waiting for confirmation")
	ErrNotGuided            = errors.New("not in guided mode")
	ErrNoWalkthrough        = errors.New("no walkthrough in progress")
	ErrVoiceUnavailable     = errors.New("voice channel is not configured")
	ErrDictationUnavailable = errors.New("dictation is not configured")
	ErrActionFailed         = errors.New("action failed")
)

// Mode is the screen the companion is serving.
type Mode string

const (
	ModeHub        Mode = "hub"
	ModeQuickStart Mode = "quick_start"
	ModeTournament Mode = "tournament"
	ModeGuided     Mode = "guided"
)

// Status is what the input layer should allow right now.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusActionPending    Status = "action_pending"
	StatusSpeaking         Status = "speaking"
)

type NoticeKind string

const (
	NoticeRequestFailed   NoticeKind = "request_failed"
	NoticeVoiceFailed     NoticeKind = "voice_failed"
	NoticeSpeechFailed    NoticeKind = "speech_failed"
	NoticeActionFailed    NoticeKind = "action_failed"
	NoticeInvalidAction   NoticeKind = "invalid_action"
	NoticeDictationFailed NoticeKind = "dictation_failed"
)

// Notice is a transient, user-visible failure message. Each terminal
// failure produces exactly one.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Snapshot is a point-in-time copy of everything the UI renders.
type Snapshot struct {
	Mode           Mode
	Status         Status
	AudioResponses bool
	Voice          voice.State
	Dictating      bool
	PendingAction  *actions.Action
	Game           string
	Rules          string
	Walkthrough    walkthrough.State
}
