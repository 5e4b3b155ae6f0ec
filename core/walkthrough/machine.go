// Package walkthrough tracks a step-by-step teaching session for one game.
package walkthrough

import (
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-tabletop/core/spoken"
	"github.com/koscakluka/ema-tabletop/core/steps"
	"github.com/koscakluka/ema-tabletop/core/transcript"
)

type Status string

const (
	StatusIdle              Status = "idle"
	StatusPlanning          Status = "planning"
	StatusInStep            Status = "in_step"
	StatusAnsweringQuestion Status = "answering_question"
	StatusComplete          Status = "complete"
)

// State is a point-in-time copy of a walkthrough.
type State struct {
	Status     Status
	Game       string
	Steps      []steps.Step
	StepIndex  int
	Transcript []transcript.Message
}

// CurrentStep returns the step at StepIndex, or nil when there are no steps.
func (s State) CurrentStep() *steps.Step {
	if s.StepIndex < 0 || s.StepIndex >= len(s.Steps) {
		return nil
	}
	step := s.Steps[s.StepIndex]
	return &step
}

type Option func(*Machine)

// WithSpokenRegistry binds a registry that Reset clears together with the
// walkthrough.
func WithSpokenRegistry(registry *spoken.Registry) Option {
	return func(m *Machine) {
		m.spoken = registry
	}
}

// WithTranscript makes the machine own an existing transcript log.
func WithTranscript(log *transcript.Log) Option {
	return func(m *Machine) {
		m.transcript = log
	}
}

// Machine is safe for concurrent use. StepIndex is always within bounds of
// Steps, or 0 when there are none.
type Machine struct {
	mu sync.RWMutex

	status    Status
	game      string
	steps     []steps.Step
	stepIndex int

	transcript *transcript.Log
	spoken     *spoken.Registry
}

func New(opts ...Option) *Machine {
	m := &Machine{status: StatusIdle}
	for _, opt := range opts {
		opt(m)
	}
	if m.transcript == nil {
		m.transcript = transcript.NewLog()
	}
	return m
}

// StartWalkthrough begins teaching game from scratch. Any earlier walkthrough
// is discarded.
func (m *Machine) StartWalkthrough(game string) {
	m.Reset()

	m.mu.Lock()
	m.game = game
	m.status = StatusPlanning
	m.mu.Unlock()
}

// AddStep appends step and makes it the current one.
func (m *Machine) AddStep(step steps.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = append(m.steps, step)
	m.stepIndex = len(m.steps) - 1
	m.status = StatusInStep
}

// SetSteps replaces the plan and moves to its first step.
func (m *Machine) SetSteps(list []steps.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = append([]steps.Step(nil), list...)
	m.stepIndex = 0
	if len(m.steps) > 0 {
		m.status = StatusInStep
	} else if m.status != StatusIdle {
		m.status = StatusPlanning
	}
}

// NextStep advances to the following step. At the last step it completes the
// walkthrough and returns false.
func (m *Machine) NextStep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.steps) == 0 {
		return false
	}
	if m.stepIndex < len(m.steps)-1 {
		m.stepIndex++
		m.status = StatusInStep
		return true
	}
	m.status = StatusComplete
	return false
}

// PrevStep goes back one step. At the first step nothing changes.
func (m *Machine) PrevStep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.steps) == 0 || m.stepIndex == 0 {
		return false
	}
	m.stepIndex--
	m.status = StatusInStep
	return true
}

// SetAnsweringQuestion parks the current step while an off-topic question is
// answered. It only applies while a step is active.
func (m *Machine) SetAnsweringQuestion() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusInStep {
		return false
	}
	m.status = StatusAnsweringQuestion
	return true
}

func (m *Machine) ReturnToStep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAnsweringQuestion {
		return false
	}
	m.status = StatusInStep
	return true
}

func (m *Machine) Complete() {
	m.mu.Lock()
	m.status = StatusComplete
	m.mu.Unlock()
}

// Reset returns the machine to its construction state, clearing the
// transcript and the bound spoken registry.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.status = StatusIdle
	m.game = ""
	m.steps = nil
	m.stepIndex = 0
	m.mu.Unlock()

	m.transcript.Clear()
	if m.spoken != nil {
		m.spoken.Clear()
	}
}

func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Machine) Game() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.game
}

func (m *Machine) StepIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stepIndex
}

func (m *Machine) StepCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

func (m *Machine) CurrentStep() *steps.Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.steps) == 0 {
		return nil
	}
	step := m.steps[m.stepIndex]
	return &step
}

func (m *Machine) Transcript() *transcript.Log {
	return m.transcript
}

// Snapshot returns a deep copy of the walkthrough that callers may keep.
func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := State{
		Status:     m.status,
		Game:       m.game,
		StepIndex:  m.stepIndex,
		Transcript: m.transcript.Messages(),
	}
	if len(m.steps) == 0 {
		return snapshot
	}
	if err := copier.CopyWithOption(&snapshot.Steps, &m.steps, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to deep copy walkthrough steps", "error", err)
		snapshot.Steps = append([]steps.Step(nil), m.steps...)
	}
	return snapshot
}
