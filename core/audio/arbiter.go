package audio

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Owner names who holds the shared audio devices.
type Owner int

const (
	OwnerNone Owner = iota
	OwnerVoiceChannel
	OwnerPlayback
	OwnerDictation
)

func (o Owner) String() string {
	switch o {
	case OwnerVoiceChannel:
		return "voice_channel"
	case OwnerPlayback:
		return "playback"
	case OwnerDictation:
		return "dictation"
	}
	return "none"
}

// Arbiter hands out exclusive use of the microphone and speaker. There is at
// most one owner at a time and acquiring is the only way to change it.
type Arbiter struct {
	mu         sync.Mutex
	owner      Owner
	generation uint64
	release    func()
}

func NewArbiter() *Arbiter {
	return &Arbiter{}
}

func (a *Arbiter) Owner() Owner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// Acquire makes owner the holder. The previous holder's release function has
// returned by the time Acquire does.
func (a *Arbiter) Acquire(owner Owner, release func()) *Lease {
	lease, _ := a.acquire(owner, release, nil)
	return lease
}

// AcquireUnless acquires only when the current holder is not one of
// blockers. On refusal nothing changes.
func (a *Arbiter) AcquireUnless(owner Owner, release func(), blockers ...Owner) (*Lease, bool) {
	return a.acquire(owner, release, blockers)
}

// Revoke tears down whoever holds the devices.
func (a *Arbiter) Revoke() {
	a.mu.Lock()
	release := a.release
	a.generation++
	a.owner = OwnerNone
	a.release = nil
	a.mu.Unlock()

	if release != nil {
		release()
	}
}

func (a *Arbiter) acquire(owner Owner, release func(), blockers []Owner) (*Lease, bool) {
	a.mu.Lock()
	if slices.Contains(blockers, a.owner) {
		a.mu.Unlock()
		return nil, false
	}
	previous := a.release
	a.generation++
	a.owner = owner
	a.release = release
	lease := &Lease{arbiter: a, owner: owner, generation: a.generation}
	a.mu.Unlock()

	if previous != nil {
		previous()
	}
	return lease, true
}

// Lease is one holder's claim on the devices.
type Lease struct {
	arbiter    *Arbiter
	owner      Owner
	generation uint64
	released   atomic.Bool
}

func (l *Lease) Owner() Owner {
	return l.owner
}

// Active reports whether the lease is still the current claim.
func (l *Lease) Active() bool {
	if l == nil || l.released.Load() {
		return false
	}
	l.arbiter.mu.Lock()
	defer l.arbiter.mu.Unlock()
	return l.arbiter.generation == l.generation
}

// Release gives the devices back. It does not call the lease's own release
// function and is a no-op once the lease was superseded.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.arbiter.mu.Lock()
	defer l.arbiter.mu.Unlock()
	if l.arbiter.generation == l.generation {
		l.arbiter.owner = OwnerNone
		l.arbiter.release = nil
	}
}
