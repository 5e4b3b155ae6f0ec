// Package realtime connects voice sessions to a realtime speech-to-speech
// endpoint over a websocket.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"

	defaultConnectTimeout = 15 * time.Second
	closeWriteTimeout     = 250 * time.Millisecond
	writeTimeout          = 5 * time.Second
	messageBufferSize     = 256
)

var errConnectionClosed = errors.New("realtime connection is closed")

// TransportError wraps a failure to reach the realtime endpoint.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime dial %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Option func(*Transport)

func WithURL(endpoint string) Option {
	return func(t *Transport) {
		t.url = endpoint
	}
}

func WithModel(model string) Option {
	return func(t *Transport) {
		t.model = model
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = dialer
	}
}

// Transport implements voice.Transport.
type Transport struct {
	url    string
	model  string
	dialer *websocket.Dialer
}

func NewTransport(opts ...Option) *Transport {
	t := &Transport{url: DefaultURL, model: DefaultModel, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Connect(ctx context.Context, credential voice.Credential, config voice.Config) (voice.PeerConnection, error) {
	ctx, span := tracer.Start(ctx, "connect realtime session")
	defer span.End()

	endpoint, err := t.endpoint(credential)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("realtime.url", endpoint))

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+credential.Value)
	headers.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := t.dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		err = &TransportError{URL: endpoint, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stopAbort := context.AfterFunc(dialCtx, func() { _ = ws.Close() })
	err = t.handshake(dialCtx, ws, config)
	if !stopAbort() && err == nil {
		err = dialCtx.Err()
	}
	if err != nil {
		_ = ws.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	conn := &connection{
		ws:       ws,
		messages: make(chan voice.Message, messageBufferSize),
		done:     make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

func (t *Transport) endpoint(credential voice.Credential) (string, error) {
	if credential.URL != "" {
		return credential.URL, nil
	}
	endpoint, err := url.Parse(t.url)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}
	query := endpoint.Query()
	if query.Get("model") == "" && t.model != "" {
		query.Set("model", t.model)
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// handshake configures the session and waits for the server to acknowledge
// it.
func (t *Transport) handshake(ctx context.Context, ws *websocket.Conn, config voice.Config) error {
	if err := ws.WriteJSON(newSessionUpdate(config)); err != nil {
		return fmt.Errorf("failed to send session update: %w", err)
	}

	deadline, _ := ctx.Deadline()
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read session acknowledgement: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event serverEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("failed to decode realtime event: %w", err)
		}
		switch event.Type {
		case eventSessionCreated, eventSessionUpdated:
			return nil
		case eventError:
			if event.Error != nil {
				return event.Error
			}
			return &Error{Message: "session rejected"}
		}
	}
}

type connection struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	messages chan voice.Message
	done     chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *connection) Messages() <-chan voice.Message {
	return c.messages
}

func (c *connection) SendAudio(chunk []byte) error {
	return c.sendJSON(audioAppendEvent{
		Type:  eventInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

func (c *connection) UpdateSession(config voice.Config) error {
	return c.sendJSON(newSessionUpdate(config))
}

// Close sends a close frame with a short deadline and drops the socket
// without waiting for the server or for a write in progress. WriteControl
// and Close may run concurrently with other writers.
func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		err = c.ws.Close()
	})
	return err
}

func (c *connection) sendJSON(v any) error {
	if c.closed.Load() {
		return errConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *connection) readLoop() {
	defer close(c.messages)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.emit(voice.Message{Type: voice.MessageError, Err: fmt.Errorf("%w: %w", voice.ErrConnectionLost, err)})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		message, ok, err := decodeServerEvent(data)
		if err != nil {
			logger.Warn("dropping malformed realtime event", "error", err)
			continue
		}
		if ok && !c.emit(message) {
			return
		}
	}
}

func (c *connection) emit(message voice.Message) bool {
	select {
	case c.messages <- message:
		return true
	case <-c.done:
		return false
	}
}
