// Package deepgram synthesizes speech with the Deepgram speak websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/speak"
	closeWriteTimeout = 250 * time.Millisecond
)

var ErrMissingAPIKey = errors.New("deepgram api key not found")

type Option func(*SpeechClient)

func WithAPIKey(apiKey string) Option {
	return func(c *SpeechClient) {
		c.apiKey = apiKey
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) Option {
	return func(c *SpeechClient) {
		c.encoding = encoding
	}
}

func WithEndpoint(endpoint string) Option {
	return func(c *SpeechClient) {
		c.endpoint = endpoint
	}
}

// SpeechClient implements speech.Synthesizer. Each call opens its own
// websocket, so calls never share state.
type SpeechClient struct {
	apiKey   string
	endpoint string
	voice    deepgramVoice
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer
}

// NewSpeechClient reads DEEPGRAM_API_KEY when no key is given.
func NewSpeechClient(voice deepgramVoice, opts ...Option) (*SpeechClient, error) {
	client := &SpeechClient{
		endpoint: defaultEndpoint,
		voice:    defaultVoice,
		encoding: audio.GetDefaultEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	if voice != "" {
		if !slices.Contains(GetAvailableVoices(), voice) {
			return nil, fmt.Errorf("invalid voice %q", voice)
		}
		client.voice = voice
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok || apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		client.apiKey = apiKey
	}
	return client, nil
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Synthesize sends text, flushes and collects audio until the server reports
// the flush. A voice in opts overrides the client's voice when it is known.
func (c *SpeechClient) Synthesize(ctx context.Context, text string, opts speech.SynthesisOptions) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	voice := c.voice
	if candidate := deepgramVoice(opts.Voice); slices.Contains(GetAvailableVoices(), candidate) {
		voice = candidate
	}
	span.SetAttributes(attribute.String("tts.voice", string(voice)), attribute.Int("tts.characters", len(text)))

	fail := func(err error) ([]byte, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	conn, err := c.connect(ctx, voice)
	if err != nil {
		return fail(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		_ = conn.Close()
	}()

	for _, message := range []speakMessage{{Type: "Speak", Text: text}, {Type: "Flush"}} {
		if err := conn.WriteJSON(message); err != nil {
			return fail(c.interrupted(ctx, fmt.Errorf("failed to send %s message: %w", message.Type, err)))
		}
	}

	var speechAudio []byte
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return fail(c.interrupted(ctx, fmt.Errorf("failed to read synthesized speech: %w", err)))
		}

		switch messageType {
		case websocket.BinaryMessage:
			speechAudio = append(speechAudio, payload...)
		case websocket.TextMessage:
			var message struct {
				Type        string `json:"type"`
				ErrMsg      string `json:"err_msg"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(payload, &message); err != nil {
				logger.Debug("failed to decode deepgram message", "error", err)
				continue
			}
			switch message.Type {
			case "Flushed":
				_ = conn.WriteJSON(speakMessage{Type: "Close"})
				span.SetAttributes(attribute.Int("tts.bytes", len(speechAudio)))
				return speechAudio, nil
			case "Warning", "Error":
				logger.Warn("deepgram reported a problem", "type", message.Type, "description", message.Description, "error", message.ErrMsg)
				if message.Type == "Error" {
					return fail(fmt.Errorf("deepgram error: %s", message.Description))
				}
			}
		}
	}
}

func (c *SpeechClient) connect(ctx context.Context, voice deepgramVoice) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}
	query := url.Values{}
	query.Set("encoding", c.encoding.Format.Name())
	query.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	query.Set("model", string(voice))
	query.Set("container", "none")
	endpoint.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, endpoint.String(), http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// interrupted prefers the context error so callers can tell a cancelled
// synthesis from a failed one.
func (c *SpeechClient) interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
