package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/steps"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
	"go.opentelemetry.io/otel/attribute"
)

const nextStepMessage = "Next"

// StartWalkthrough begins teaching game one step at a time. Any earlier
// walkthrough, transcript included, is discarded.
func (o *Orchestrator) StartWalkthrough(ctx context.Context, game string) error {
	game = strings.TrimSpace(game)
	if game == "" {
		return errors.New("game name is required")
	}
	if o.Mode() != ModeGuided {
		return ErrNotGuided
	}
	return o.sendTurn(ctx, fmt.Sprintf("Guide us through %s.", game), intents.Result{
		Intent: intents.IntentStartWalkthrough,
		Game:   game,
	})
}

// applyAssistantText looks for a step in an assistant reply. A marked step
// is always added. An unmarked reply only becomes a step when the player
// asked to move on in a walkthrough that was started.
func (o *Orchestrator) applyAssistantText(text string, advancing bool) bool {
	step := steps.Parse(text)
	if step == nil {
		return false
	}
	if !step.Marked {
		if !advancing {
			return false
		}
		if o.walkthrough.Status() == walkthrough.StatusIdle {
			return false
		}
	}

	o.walkthrough.AddStep(*step)
	o.callbacks.stepChanged(o.walkthrough.Snapshot())
	return true
}

// Next moves the walkthrough forward. Audio responses are switched off and
// any voice session is closed first, so the reply is never narrated twice.
// Steps already known are revisited locally. Past the last one the
// walkthrough completes and the assistant is asked for the next step; any
// step recovered from the reply resumes it. Next reports whether a new
// current step was reached.
func (o *Orchestrator) Next(ctx context.Context) (bool, error) {
	if o.Mode() != ModeGuided {
		return false, ErrNotGuided
	}
	switch o.walkthrough.Status() {
	case walkthrough.StatusIdle, walkthrough.StatusComplete:
		return false, ErrNoWalkthrough
	}
	if o.walkthrough.StepCount() == 0 {
		return false, ErrNoWalkthrough
	}
	o.mu.Lock()
	err := o.checkTurnAllowedLocked()
	o.mu.Unlock()
	if err != nil {
		return false, err
	}

	o.SetAudioResponses(false)
	o.StopVoice()

	if o.walkthrough.StepIndex() < o.walkthrough.StepCount()-1 {
		moved := o.walkthrough.NextStep()
		o.callbacks.stepChanged(o.walkthrough.Snapshot())
		return moved, nil
	}

	t, err := o.beginTurn(ctx)
	if err != nil {
		return false, err
	}
	defer o.endTurn(t)

	ctx, span := tracer.Start(t.ctx, "next step")
	defer span.End()
	t.ctx = ctx

	// moving past the last known step completes the walkthrough until the
	// reply brings a new step
	state := o.walkthrough.Snapshot()
	o.walkthrough.NextStep()
	o.callbacks.stepChanged(o.walkthrough.Snapshot())

	stepNumber := state.StepIndex + 1
	summary := ""
	if step := state.CurrentStep(); step != nil {
		summary = step.Summary
	}
	span.SetAttributes(attribute.Int("walkthrough.completed_step", stepNumber))

	o.appendMessage(transcript.RoleUser, nextStepMessage)
	instruction := fmt.Sprintf(
		"We are playing %s and just completed step %d: %s. Give us step %d, starting with \"DO THIS NOW:\". "+
			"If there is nothing left to teach, say so without a step marker.",
		state.Game, stepNumber, summary, stepNumber+1)
	completion, err := o.complete(t, o.completionContext(instruction, false))
	if err != nil {
		return false, o.failTurn(t, span, err)
	}
	if !o.isCurrent(t) {
		return false, nil
	}
	if completion.Type == backend.CompletionActionProposal {
		o.proposeAction(t, completion)
		return false, nil
	}
	if strings.TrimSpace(completion.Message) == "" {
		logger.Warn("assistant sent an empty reply")
		return false, nil
	}

	message := o.appendMessage(transcript.RoleAssistant, completion.Message)
	return o.applyAssistantText(message.Content, true), nil
}

// Previous goes back one step and reports whether it moved.
func (o *Orchestrator) Previous() bool {
	if o.Mode() != ModeGuided {
		return false
	}
	moved := o.walkthrough.PrevStep()
	if moved {
		o.callbacks.stepChanged(o.walkthrough.Snapshot())
	}
	return moved
}
