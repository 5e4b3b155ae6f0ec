package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-tabletop/core/backend"
	"github.com/koscakluka/ema-tabletop/core/intents"
	"github.com/koscakluka/ema-tabletop/core/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const actionFailedReply = "Sorry, that didn't go through. Nothing was changed."

// proposeAction turns a proposal into the pending action. At most one
// action is pending at a time.
func (o *Orchestrator) proposeAction(t *turn, completion *backend.Completion) {
	var proposed backend.ProposedAction
	if completion.Action != nil {
		proposed = *completion.Action
	}
	action, err := o.catalogue.Validate(proposed.Type, proposed.Params, completion.Message)
	if err != nil {
		if completion.Message != "" {
			o.appendMessage(transcript.RoleAssistant, completion.Message)
		}
		o.callbacks.notice(Notice{
			Kind:    NoticeInvalidAction,
			Message: "The assistant suggested something that can't be done here.",
			Err:     err,
		})
		return
	}

	o.mu.Lock()
	if o.closed || o.turnGeneration != t.generation || o.pending != nil {
		o.mu.Unlock()
		logger.Warn("dropping action proposal", "action", string(action.Kind))
		return
	}
	o.pending = &action
	o.mu.Unlock()

	o.publishStatus()
	message := o.appendMessage(transcript.RoleAssistant, action.Confirmation)
	o.speakOnce(message)
}

// ConfirmAction runs the pending action. The action is cleared whether or
// not it succeeds and is never retried.
func (o *Orchestrator) ConfirmAction(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.pending == nil:
		o.mu.Unlock()
		return ErrNoPendingAction
	case o.inFlight:
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	action := *o.pending
	o.pending = nil
	t := o.beginTurnLocked(ctx)
	o.mu.Unlock()
	o.publishStatus()
	defer o.endTurn(t)

	ctx, span := tracer.Start(t.ctx, "execute action")
	defer span.End()
	span.SetAttributes(attribute.String("action.kind", string(action.Kind)))

	result, err := o.backend.ExecuteAction(ctx, string(action.Kind), action.Params)
	if err != nil {
		if isTeardown(err) || !o.isCurrent(t) {
			return err
		}
		return o.failAction(span, actionFailedReply, fmt.Errorf("%w: %w", ErrActionFailed, err))
	}
	if !result.Success {
		reply := result.Message
		if reply == "" {
			reply = actionFailedReply
		}
		return o.failAction(span, reply, fmt.Errorf("%w: %s", ErrActionFailed, reply))
	}
	if !o.isCurrent(t) {
		return nil
	}

	reply := result.Message
	if reply == "" {
		reply = "Done."
	}
	o.speakOnce(o.appendMessage(transcript.RoleAssistant, reply))
	return nil
}

func (o *Orchestrator) failAction(span trace.Span, reply string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.appendMessage(transcript.RoleAssistant, reply)
	o.callbacks.notice(Notice{Kind: NoticeActionFailed, Message: reply, Err: err})
	return err
}

// CancelAction drops the pending action. It reports whether there was one.
func (o *Orchestrator) CancelAction() bool {
	o.mu.Lock()
	action := o.pending
	o.pending = nil
	o.mu.Unlock()
	if action == nil {
		return false
	}

	o.appendMessage(transcript.RoleSystem, "Cancelled: "+action.Confirmation)
	o.publishStatus()
	return true
}

func (o *Orchestrator) hasPendingAction() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// resolveBySpeech answers the pending action with a spoken yes or no.
func (o *Orchestrator) resolveBySpeech(intent intents.Result) {
	switch intent.Intent {
	case intents.IntentAffirm:
		goWorker(o.baseContext, "confirm action", func(ctx context.Context) error {
			if err := o.ConfirmAction(ctx); err != nil && !errors.Is(err, ErrActionFailed) {
				return err
			}
			return nil
		})
	case intents.IntentDeny:
		o.CancelAction()
	}
}
