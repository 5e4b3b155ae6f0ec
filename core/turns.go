package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"github.com/koscakluka/ema-tabletop/core/walkthrough"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// turn is one outstanding request to the backend. A turn whose generation
// is no longer current was abandoned by a mode switch or Close and must not
// touch session state.
type turn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
}

func (o *Orchestrator) checkTurnAllowedLocked() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.backend == nil:
		return ErrNoBackend
	case o.inFlight:
		return ErrTurnInFlight
	case o.pending != nil:
		return ErrActionPending
	}
	return nil
}

func (o *Orchestrator) beginTurn(ctx context.Context) (*turn, error) {
	o.mu.Lock()
	if err := o.checkTurnAllowedLocked(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	t := o.beginTurnLocked(ctx)
	o.mu.Unlock()

	o.publishStatus()
	return t, nil
}

func (o *Orchestrator) beginTurnLocked(ctx context.Context) *turn {
	o.inFlight = true
	o.turnGeneration++
	turnCtx, cancel := context.WithCancel(ctx)
	o.cancelTurn = cancel
	return &turn{ctx: turnCtx, cancel: cancel, generation: o.turnGeneration}
}

func (o *Orchestrator) endTurn(t *turn) {
	o.mu.Lock()
	if o.turnGeneration == t.generation {
		o.inFlight = false
		o.cancelTurn = nil
	}
	o.mu.Unlock()
	t.cancel()

	o.publishStatus()
}

func (o *Orchestrator) isCurrent(t *turn) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && o.turnGeneration == t.generation
}

// SendMessage sends typed or dictated text to the assistant and waits for
// the reply. The reply is recorded in the transcript and, when audio
// responses are on, read aloud in the background.
//
// Only one message may be outstanding, and none while the voice channel is
// active or an action waits for confirmation.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return o.sendTurn(ctx, text, o.classifier.Classify(text))
}

func (o *Orchestrator) sendTurn(ctx context.Context, text string, intent intents.Result) error {
	if o.voiceBusy() {
		return ErrVoiceChannelActive
	}
	t, err := o.beginTurn(ctx)
	if err != nil {
		return err
	}
	defer o.endTurn(t)

	ctx, span := tracer.Start(t.ctx, "send message")
	defer span.End()
	span.SetAttributes(attribute.String("message.intent", string(intent.Intent)))
	t.ctx = ctx

	guided := o.Mode() == ModeGuided
	if guided && intent.Intent == intents.IntentStartWalkthrough && intent.Game != "" {
		o.startWalkthrough(intent.Game)
	}
	o.appendMessage(transcript.RoleUser, text)

	answeringQuestion := guided && !intent.IsStepAdvancing() && o.walkthrough.SetAnsweringQuestion()
	if answeringQuestion {
		defer o.walkthrough.ReturnToStep()
	}

	completion, err := o.complete(t, o.completionContext("", intent.Intent == intents.IntentHouseRule))
	if err != nil {
		return o.failTurn(t, span, err)
	}
	o.handleCompletion(t, completion, intent.IsStepAdvancing())
	return nil
}

func (o *Orchestrator) complete(t *turn, completionContext backend.CompletionContext) (*backend.Completion, error) {
	return o.backend.Complete(t.ctx, backend.CompletionRequest{
		Messages: o.history(),
		Context:  completionContext,
	})
}

// failTurn raises a notice for a failed request unless the turn was torn
// down on purpose.
func (o *Orchestrator) failTurn(t *turn, span trace.Span, err error) error {
	if isTeardown(err) || !o.isCurrent(t) {
		logger.Debug("abandoned turn ended", "error", err)
		return err
	}
	err = fmt.Errorf("failed to get a reply: %w", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.callbacks.notice(Notice{
		Kind:    NoticeRequestFailed,
		Message: "Couldn't reach the assistant. Please try again.",
		Err:     err,
	})
	return err
}

// handleCompletion records a reply. Text replies are checked for a
// walkthrough step in guided mode and spoken once; proposals become the
// pending action.
func (o *Orchestrator) handleCompletion(t *turn, completion *backend.Completion, advancing bool) {
	if !o.isCurrent(t) {
		logger.Debug("dropping reply to an abandoned turn")
		return
	}

	if completion.Type == backend.CompletionActionProposal {
		o.proposeAction(t, completion)
		return
	}
	if strings.TrimSpace(completion.Message) == "" {
		logger.Warn("assistant sent an empty reply")
		return
	}

	message := o.appendMessage(transcript.RoleAssistant, completion.Message)
	if o.Mode() == ModeGuided {
		o.applyAssistantText(message.Content, advancing)
	}
	o.speakOnce(message)
}

func (o *Orchestrator) startWalkthrough(game string) {
	o.walkthrough.StartWalkthrough(game)
	o.callbacks.stepChanged(o.walkthrough.Snapshot())
}

// hasHistory reports whether switching away would lose anything.
func (o *Orchestrator) hasHistory() bool {
	o.mu.Lock()
	pending := o.pending != nil
	o.mu.Unlock()
	return pending || o.transcript.Len() > 0 || o.walkthrough.Status() != walkthrough.StatusIdle
}
