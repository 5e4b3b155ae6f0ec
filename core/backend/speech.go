package backend

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-tabletop/core/speech"
	"go.opentelemetry.io/otel/attribute"
)

var errEmptyAudio = errors.New("speech response has no audio")

// Synthesize implements speech.Synthesizer. The backend returns the whole
// audio artifact in one response.
func (c *Client) Synthesize(ctx context.Context, text string, opts speech.SynthesisOptions) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "backend synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.Int("speech.text_length", len(text)),
		attribute.String("speech.voice", opts.Voice),
	)

	audio, err := c.do(ctx, span, request{
		op:   "synthesize",
		path: speechPath,
		body: struct {
			Text         string `json:"text"`
			Voice        string `json:"voice,omitempty"`
			Instructions string `json:"instructions,omitempty"`
		}{Text: text, Voice: opts.Voice, Instructions: opts.Instructions},
		accept: "application/octet-stream",
	})
	if err != nil {
		return nil, recordError(span, err)
	}
	if len(audio) == 0 {
		return nil, recordError(span, errEmptyAudio)
	}

	span.SetAttributes(attribute.Int("speech.audio_bytes", len(audio)))
	return audio, nil
}
