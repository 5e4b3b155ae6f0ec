// Package voice runs a live, two-way voice session with the assistant.
//
// A Manager owns at most one Session. Starting a session claims the shared
// audio devices from the audio.Arbiter, fetches a single-use credential from
// a Bootstrapper and negotiates a PeerConnection through a Transport.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSuperseded is returned by Start when Stop or another Start ran while
	// the session was being negotiated.
	ErrSuperseded = errors.New("voice session start superseded")
	// ErrConnectionLost is reported when the remote side goes away.
	ErrConnectionLost = errors.New("voice connection lost")
)

// SessionContext is what the remote assistant needs to know about the table.
type SessionContext struct {
	Game       string
	Rules      string
	Guided     bool
	StepNumber int
	StepTitle  string
	StepDetail string
}

type Config struct {
	Instructions string
	Voice        string
	Context      SessionContext
}

// ComposeInstructions merges base instructions with the table context.
func (c Config) ComposeInstructions() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.Instructions))

	section := func(format string, args ...any) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, format, args...)
	}
	if c.Context.Game != "" {
		section("The group is playing %s.", c.Context.Game)
	}
	if rules := strings.TrimSpace(c.Context.Rules); rules != "" {
		section("House rules:\n%s", rules)
	}
	if c.Context.Guided {
		section("You are walking the group through the game one step at a time. " +
			"Start every new step with \"DO THIS NOW:\" followed by the action, " +
			"and optionally \"UP NEXT:\" with a short preview.")
		if c.Context.StepNumber > 0 {
			section("They are on step %d: %s\n%s", c.Context.StepNumber, c.Context.StepTitle, c.Context.StepDetail)
		}
	}
	return b.String()
}

type BootstrapRequest struct {
	Voice        string         `json:"voice,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Context      SessionContext `json:"context"`
}

// Credential is an ephemeral, single-use secret for one session.
type Credential struct {
	Value     string
	ExpiresAt time.Time
	// URL overrides the transport's default endpoint when set.
	URL string
}

func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

type Bootstrapper interface {
	CreateVoiceSession(ctx context.Context, request BootstrapRequest) (Credential, error)
}

type Transport interface {
	Connect(ctx context.Context, credential Credential, config Config) (PeerConnection, error)
}

// PeerConnection is a negotiated link to the remote assistant. Messages is
// closed when the connection ends. Close must not block on the network.
type PeerConnection interface {
	SendAudio(audio []byte) error
	Messages() <-chan Message
	UpdateSession(config Config) error
	Close() error
}

type MessageType int

const (
	MessageUserSpeechStarted MessageType = iota
	MessageUserTranscriptDelta
	MessageUserTranscriptCompleted
	MessageAssistantTranscriptDelta
	MessageAssistantTranscriptDone
	MessageAssistantAudio
	MessageResponseDone
	MessageError
)

// Message is one decoded server event.
type Message struct {
	Type  MessageType
	Text  string
	Audio []byte
	Err   error
}
