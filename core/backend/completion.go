package backend

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-tabletop/core/actions"
	"go.opentelemetry.io/otel/attribute"
)

type CompletionType string

const (
	CompletionTextResponse   CompletionType = "text_response"
	CompletionActionProposal CompletionType = "action_proposal"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionContext describes the table to the model alongside the
// messages. Instruction is a one-off directive for this request, e.g. which
// step to produce next.
type CompletionContext struct {
	Mode              string           `json:"mode"`
	Game              string           `json:"game,omitempty"`
	Rules             string           `json:"rules,omitempty"`
	Guided            bool             `json:"guided,omitempty"`
	StepNumber        int              `json:"stepNumber,omitempty"`
	StepSummary       string           `json:"stepSummary,omitempty"`
	Instruction       string           `json:"instruction,omitempty"`
	PossibleHouseRule bool             `json:"possibleHouseRule,omitempty"`
	AvailableActions  []actions.Schema `json:"availableActions,omitempty"`
}

type CompletionRequest struct {
	Messages []ChatMessage     `json:"messages"`
	Context  CompletionContext `json:"context"`
}

type ProposedAction struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

type Completion struct {
	Type    CompletionType  `json:"type"`
	Message string          `json:"message"`
	Action  *ProposedAction `json:"action,omitempty"`
}

// Complete asks the model for the next assistant turn. Completions have no
// side effects, so a transport failure is retried once.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := tracer.Start(ctx, "backend complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("completion.mode", req.Context.Mode),
		attribute.Int("completion.messages", len(req.Messages)),
	)

	var completion Completion
	if err := c.postJSON(ctx, span, request{
		op:      "complete",
		path:    completionsPath,
		body:    req,
		retries: true,
	}, &completion); err != nil {
		return nil, recordError(span, err)
	}

	switch completion.Type {
	case CompletionTextResponse:
	case CompletionActionProposal:
		if completion.Action == nil || completion.Action.Type == "" {
			return nil, recordError(span, fmt.Errorf("action proposal without an action"))
		}
	case "":
		completion.Type = CompletionTextResponse
	default:
		return nil, recordError(span, fmt.Errorf("unknown completion type %q", completion.Type))
	}
	span.SetAttributes(attribute.String("completion.type", string(completion.Type)))
	return &completion, nil
}
