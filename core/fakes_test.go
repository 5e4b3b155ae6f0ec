package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"github.com/koscakluka/ema-tabletop/core/speechtotext"
	"github.com/koscakluka/ema-tabletop/core/voice"
)

func textReply(message string) *backend.Completion {
	return &backend.Completion{Type: backend.CompletionTextResponse, Message: message}
}

func proposal(message, actionType string, params map[string]any) *backend.Completion {
	return &backend.Completion{
		Type:    backend.CompletionActionProposal,
		Message: message,
		Action:  &backend.ProposedAction{Type: actionType, Params: params},
	}
}

type stubBackend struct {
	mu       sync.Mutex
	replies  []*backend.Completion
	err      error
	requests []backend.CompletionRequest
	// release, when set, holds Complete until it is closed.
	release chan struct{}
	entered chan struct{}

	actionCalls  atomic.Int32
	actionResult *backend.ActionResult
	actionErr    error
	lastAction   string
}

func (b *stubBackend) Complete(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	release, entered := b.release, b.entered
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if len(b.replies) == 0 {
		return textReply("Sure."), nil
	}
	reply := b.replies[0]
	b.replies = b.replies[1:]
	return reply, nil
}

func (b *stubBackend) ExecuteAction(_ context.Context, actionType string, _ map[string]any) (*backend.ActionResult, error) {
	b.actionCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAction = actionType
	if b.actionErr != nil {
		return nil, b.actionErr
	}
	if b.actionResult != nil {
		return b.actionResult, nil
	}
	return &backend.ActionResult{Success: true, Message: "Saved."}, nil
}

func (b *stubBackend) queue(replies ...*backend.Completion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, replies...)
}

func (b *stubBackend) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *stubBackend) lastRequest(t *testing.T) backend.CompletionRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		t.Fatalf("expected a completion request")
	}
	return b.requests[len(b.requests)-1]
}

type stubSynthesizer struct {
	calls atomic.Int32
	err   error
	// hold keeps Synthesize running until its context ends.
	hold      bool
	cancelled atomic.Int32
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, _ string, _ speech.SynthesisOptions) ([]byte, error) {
	s.calls.Add(1)
	if s.hold {
		<-ctx.Done()
		s.cancelled.Add(1)
		return nil, ctx.Err()
	}
	return []byte{0, 0}, s.err
}

type stubSpeaker struct {
	sent atomic.Int32
}

func (s *stubSpeaker) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (s *stubSpeaker) SendAudio([]byte) error {
	s.sent.Add(1)
	return nil
}

func (s *stubSpeaker) ClearBuffer() {}

type stubBootstrapper struct {
	calls atomic.Int32
	err   error
}

func (b *stubBootstrapper) CreateVoiceSession(context.Context, voice.BootstrapRequest) (voice.Credential, error) {
	b.calls.Add(1)
	if b.err != nil {
		return voice.Credential{}, b.err
	}
	return voice.Credential{Value: "ek_test"}, nil
}

type stubTransport struct {
	mu    sync.Mutex
	peers []*stubPeer
}

func (t *stubTransport) Connect(context.Context, voice.Credential, voice.Config) (voice.PeerConnection, error) {
	peer := &stubPeer{messages: make(chan voice.Message, 16)}
	t.mu.Lock()
	t.peers = append(t.peers, peer)
	t.mu.Unlock()
	return peer, nil
}

func (tr *stubTransport) peer(t *testing.T, i int) *stubPeer {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if i >= len(tr.peers) {
		t.Fatalf("expected voice connection %d, have %d", i, len(tr.peers))
	}
	return tr.peers[i]
}

type stubPeer struct {
	messages chan voice.Message
	closed   atomic.Bool
	updates  atomic.Int32
}

func (p *stubPeer) SendAudio([]byte) error { return nil }

func (p *stubPeer) Messages() <-chan voice.Message { return p.messages }

func (p *stubPeer) UpdateSession(voice.Config) error {
	p.updates.Add(1)
	return nil
}

func (p *stubPeer) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *stubPeer) say(messages ...voice.Message) {
	for _, message := range messages {
		p.messages <- message
	}
}

type stubMicrophone struct {
	active atomic.Int32
}

func (m *stubMicrophone) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (m *stubMicrophone) Stream(ctx context.Context, onAudio func([]byte)) error {
	m.active.Add(1)
	defer m.active.Add(-1)
	onAudio([]byte{0, 0})
	<-ctx.Done()
	return nil
}

type stubTranscriber struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	err     error

	started atomic.Int32
	closed  atomic.Int32
	audio   atomic.Int32
	// onClose runs inside Close, like a service sending its last result.
	onClose func(options speechtotext.TranscriptionOptions)
}

func (s *stubTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	if s.err != nil {
		return s.err
	}
	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	s.mu.Lock()
	s.options = options
	s.mu.Unlock()
	s.started.Add(1)
	return nil
}

func (s *stubTranscriber) SendAudio([]byte) error {
	s.audio.Add(1)
	return nil
}

func (s *stubTranscriber) Close(context.Context) error {
	s.closed.Add(1)
	s.mu.Lock()
	onClose, options := s.onClose, s.options
	s.mu.Unlock()
	if onClose != nil {
		onClose(options)
	}
	return nil
}

func (s *stubTranscriber) current() speechtotext.TranscriptionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
	ch      chan Notice
}

func newNoticeRecorder() *noticeRecorder {
	return &noticeRecorder{ch: make(chan Notice, 16)}
}

func (r *noticeRecorder) record(notice Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, notice)
	r.mu.Unlock()
	r.ch <- notice
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *noticeRecorder) wait(t *testing.T) Notice {
	t.Helper()
	select {
	case notice := <-r.ch:
		return notice
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notice")
	}
	return Notice{}
}

// eventually polls condition until it holds or two seconds pass.
func eventually(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
