package backend

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ExecuteAction runs a confirmed action. It is never retried.
func (c *Client) ExecuteAction(ctx context.Context, actionType string, params map[string]any) (*ActionResult, error) {
	ctx, span := tracer.Start(ctx, "backend execute action")
	defer span.End()
	span.SetAttributes(attribute.String("action.type", actionType))

	var result ActionResult
	if err := c.postJSON(ctx, span, request{
		op:   "execute action",
		path: actionsPath,
		body: struct {
			ActionType string         `json:"actionType"`
			Params     map[string]any `json:"params"`
		}{ActionType: actionType, Params: params},
	}, &result); err != nil {
		return nil, recordError(span, err)
	}

	span.SetAttributes(attribute.Bool("action.success", result.Success))
	return &result, nil
}
