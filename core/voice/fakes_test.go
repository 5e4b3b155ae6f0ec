package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-tabletop/core/audio"
)

type stubBootstrapper struct {
	calls atomic.Int32
	err   error
	// block, when set, holds the call until ctx is cancelled.
	block   bool
	entered chan struct{}
	lastReq BootstrapRequest
	mu      sync.Mutex
}

func (b *stubBootstrapper) CreateVoiceSession(ctx context.Context, request BootstrapRequest) (Credential, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.lastReq = request
	b.mu.Unlock()
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.block {
		<-ctx.Done()
		return Credential{}, ctx.Err()
	}
	if b.err != nil {
		return Credential{}, b.err
	}
	return Credential{Value: "ek_test"}, nil
}

type stubTransport struct {
	mu    sync.Mutex
	conns []*stubPeer
	err   error
}

func (t *stubTransport) Connect(_ context.Context, _ Credential, _ Config) (PeerConnection, error) {
	if t.err != nil {
		return nil, t.err
	}
	peer := newStubPeer()
	t.mu.Lock()
	t.conns = append(t.conns, peer)
	t.mu.Unlock()
	return peer, nil
}

func (t *stubTransport) peer(i int) *stubPeer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

type stubPeer struct {
	messages chan Message
	closed   atomic.Bool
	audio    atomic.Int32
	updates  atomic.Int32
}

func newStubPeer() *stubPeer {
	return &stubPeer{messages: make(chan Message, 16)}
}

func (p *stubPeer) SendAudio([]byte) error {
	if p.closed.Load() {
		return errors.New("closed")
	}
	p.audio.Add(1)
	return nil
}

func (p *stubPeer) Messages() <-chan Message { return p.messages }

func (p *stubPeer) UpdateSession(Config) error {
	p.updates.Add(1)
	return nil
}

func (p *stubPeer) Close() error {
	p.closed.Store(true)
	return nil
}

type stubMicrophone struct {
	started atomic.Int32
	stopped atomic.Int32
	active  atomic.Int32
}

func (m *stubMicrophone) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (m *stubMicrophone) Stream(ctx context.Context, onAudio func([]byte)) error {
	m.started.Add(1)
	m.active.Add(1)
	onAudio([]byte{0, 0})
	<-ctx.Done()
	m.active.Add(-1)
	m.stopped.Add(1)
	return nil
}

type stubSpeaker struct {
	mu      sync.Mutex
	played  [][]byte
	cleared atomic.Int32
}

func (s *stubSpeaker) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (s *stubSpeaker) SendAudio(chunk []byte) error {
	s.mu.Lock()
	s.played = append(s.played, chunk)
	s.mu.Unlock()
	return nil
}

func (s *stubSpeaker) ClearBuffer() { s.cleared.Add(1) }
