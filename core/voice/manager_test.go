package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/events"
)

func nextEvent(t *testing.T, session *Session) events.Event {
	t.Helper()
	select {
	case event, ok := <-session.Events():
		if !ok {
			t.Fatalf("expected event, stream closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for voice event")
	}
	return nil
}

func TestStartStreamsMicrophoneAndStopReleasesEverything(t *testing.T) {
	arbiter := audio.NewArbiter()
	transport := &stubTransport{}
	microphone := &stubMicrophone{}
	manager := NewManager(&stubBootstrapper{}, transport, arbiter, WithMicrophone(microphone))

	session, err := manager.Start(context.Background(), Config{Voice: "alloy"})
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if manager.State() != StateActive {
		t.Fatalf("expected active state, got %v", manager.State())
	}
	if arbiter.Owner() != audio.OwnerVoiceChannel {
		t.Fatalf("expected voice channel to own audio, got %v", arbiter.Owner())
	}

	manager.Stop()
	manager.Stop()

	if !transport.peer(0).closed.Load() {
		t.Fatalf("expected peer connection to be closed")
	}
	if microphone.stopped.Load() != 1 || microphone.active.Load() != 0 {
		t.Fatalf("expected microphone to be stopped once, stopped=%d active=%d", microphone.stopped.Load(), microphone.active.Load())
	}
	if arbiter.Owner() != audio.OwnerNone {
		t.Fatalf("expected audio to be released, owner %v", arbiter.Owner())
	}
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event stream to close after stop")
	}
	if manager.State() != StateIdle {
		t.Fatalf("expected idle state after stop")
	}
}

func TestStartingSecondSessionReleasesFirst(t *testing.T) {
	arbiter := audio.NewArbiter()
	transport := &stubTransport{}
	microphone := &stubMicrophone{}
	manager := NewManager(&stubBootstrapper{}, transport, arbiter, WithMicrophone(microphone))

	if _, err := manager.Start(context.Background(), Config{}); err != nil {
		t.Fatalf("unexpected error starting A: %v", err)
	}
	if _, err := manager.Start(context.Background(), Config{}); err != nil {
		t.Fatalf("unexpected error starting B: %v", err)
	}
	defer manager.Stop()

	if !transport.peer(0).closed.Load() {
		t.Fatalf("expected session A connection to be closed")
	}
	if transport.peer(1).closed.Load() {
		t.Fatalf("expected session B connection to be open")
	}
	if microphone.stopped.Load() != 1 {
		t.Fatalf("expected session A microphone to be stopped, stopped=%d", microphone.stopped.Load())
	}
}

func TestNegotiationFailureReleasesAudio(t *testing.T) {
	arbiter := audio.NewArbiter()
	microphone := &stubMicrophone{}
	manager := NewManager(&stubBootstrapper{}, &stubTransport{err: errors.New("sdp rejected")}, arbiter, WithMicrophone(microphone))

	if _, err := manager.Start(context.Background(), Config{}); err == nil {
		t.Fatalf("expected negotiation error")
	}
	if arbiter.Owner() != audio.OwnerNone {
		t.Fatalf("expected audio to be released after failure, owner %v", arbiter.Owner())
	}
	if microphone.started.Load() != 0 {
		t.Fatalf("expected microphone never to start")
	}
	if manager.State() != StateIdle {
		t.Fatalf("expected idle state after failure")
	}
}

func TestStopCancelsInFlightNegotiation(t *testing.T) {
	arbiter := audio.NewArbiter()
	bootstrapper := &stubBootstrapper{block: true, entered: make(chan struct{}, 1)}
	manager := NewManager(bootstrapper, &stubTransport{}, arbiter)

	result := make(chan error, 1)
	go func() {
		_, err := manager.Start(context.Background(), Config{})
		result <- err
	}()

	select {
	case <-bootstrapper.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("bootstrap was never called")
	}
	if manager.State() != StateStarting {
		t.Fatalf("expected starting state during negotiation")
	}
	manager.Stop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected superseded error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start did not return after stop")
	}
	if arbiter.Owner() != audio.OwnerNone {
		t.Fatalf("expected audio to be released, owner %v", arbiter.Owner())
	}
}

func TestSessionEmitsTurnInOrder(t *testing.T) {
	transport := &stubTransport{}
	speaker := &stubSpeaker{}
	manager := NewManager(&stubBootstrapper{}, transport, audio.NewArbiter(), WithSpeaker(speaker))
	session, err := manager.Start(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer manager.Stop()

	peer := transport.peer(0)
	peer.messages <- Message{Type: MessageUserTranscriptDelta, Text: "what "}
	peer.messages <- Message{Type: MessageUserTranscriptDelta, Text: "next"}
	peer.messages <- Message{Type: MessageUserTranscriptCompleted, Text: "what next"}
	peer.messages <- Message{Type: MessageAssistantTranscriptDelta, Text: "DO THIS NOW: "}
	peer.messages <- Message{Type: MessageAssistantAudio, Audio: []byte{1, 2}}
	peer.messages <- Message{Type: MessageAssistantTranscriptDelta, Text: "Deal."}
	peer.messages <- Message{Type: MessageAssistantTranscriptDone}
	peer.messages <- Message{Type: MessageAssistantTranscriptDone, Text: "duplicate"}
	peer.messages <- Message{Type: MessageResponseDone}

	expected := []events.Kind{
		events.KindUserTranscriptPartial,
		events.KindUserTranscriptPartial,
		events.KindUserTranscriptFinal,
		events.KindAssistantTranscriptDelta,
		events.KindAssistantTranscriptDelta,
		events.KindAssistantTranscriptDone,
		events.KindTurnDone,
	}
	var got []events.Event
	for range expected {
		got = append(got, nextEvent(t, session))
	}
	for i, kind := range expected {
		if got[i].Kind() != kind {
			t.Fatalf("event %d: expected %q, got %q", i, kind, got[i].Kind())
		}
	}
	if partial := got[1].(events.UserTranscriptPartial); partial.Transcript != "what next" {
		t.Fatalf("expected accumulated partial, got %q", partial.Transcript)
	}
	if done := got[5].(events.AssistantTranscriptDone); done.Transcript != "DO THIS NOW: Deal." {
		t.Fatalf("expected buffered transcript, got %q", done.Transcript)
	}
	speaker.mu.Lock()
	played := len(speaker.played)
	speaker.mu.Unlock()
	if played != 1 {
		t.Fatalf("expected remote audio to reach the speaker, got %d chunks", played)
	}
}

func TestResponseDoneWithoutTranscriptStillEmitsDone(t *testing.T) {
	transport := &stubTransport{}
	manager := NewManager(&stubBootstrapper{}, transport, audio.NewArbiter())
	session, err := manager.Start(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer manager.Stop()

	peer := transport.peer(0)
	peer.messages <- Message{Type: MessageAssistantTranscriptDelta, Text: "Shuffle "}
	peer.messages <- Message{Type: MessageAssistantTranscriptDelta, Text: "first."}
	peer.messages <- Message{Type: MessageResponseDone}
	peer.messages <- Message{Type: MessageAssistantTranscriptDelta, Text: "Second."}
	peer.messages <- Message{Type: MessageResponseDone}

	var dones []string
	turns := 0
	for turns < 2 {
		switch event := nextEvent(t, session).(type) {
		case events.AssistantTranscriptDone:
			dones = append(dones, event.Transcript)
		case events.TurnDone:
			turns++
		}
	}
	if strings.Join(dones, "|") != "Shuffle first.|Second." {
		t.Fatalf("expected one done per turn with reset buffer, got %q", dones)
	}
}

func TestConnectionLossEmitsSingleErrorAndCloses(t *testing.T) {
	arbiter := audio.NewArbiter()
	transport := &stubTransport{}
	manager := NewManager(&stubBootstrapper{}, transport, arbiter)
	session, err := manager.Start(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	close(transport.peer(0).messages)

	event := nextEvent(t, session)
	voiceErr, ok := event.(events.VoiceError)
	if !ok || !errors.Is(voiceErr, ErrConnectionLost) {
		t.Fatalf("expected connection lost voice error, got %#v", event)
	}
	select {
	case _, open := <-session.Events():
		if open {
			t.Fatalf("expected no further events after voice error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event stream to close")
	}

	deadline := time.Now().Add(2 * time.Second)
	for arbiter.Owner() != audio.OwnerNone {
		if time.Now().After(deadline) {
			t.Fatalf("expected audio to be released after connection loss")
		}
		time.Sleep(10 * time.Millisecond)
	}
	manager.Stop()
}

func TestBootstrapReceivesComposedInstructions(t *testing.T) {
	bootstrapper := &stubBootstrapper{}
	manager := NewManager(bootstrapper, &stubTransport{}, audio.NewArbiter())
	_, err := manager.Start(context.Background(), Config{
		Instructions: "Be brief.",
		Voice:        "verse",
		Context:      SessionContext{Game: "Uno", Rules: "Stack draw twos", Guided: true, StepNumber: 2, StepTitle: "Deal"},
	})
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer manager.Stop()

	bootstrapper.mu.Lock()
	request := bootstrapper.lastReq
	bootstrapper.mu.Unlock()
	for _, fragment := range []string{"Be brief.", "playing Uno", "Stack draw twos", "DO THIS NOW:", "step 2: Deal"} {
		if !strings.Contains(request.Instructions, fragment) {
			t.Fatalf("expected instructions to contain %q, got %q", fragment, request.Instructions)
		}
	}
	if request.Voice != "verse" {
		t.Fatalf("expected voice to be forwarded, got %q", request.Voice)
	}
}
