package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tabletop/core/audio"
	"github.com/koscakluka/ema-tabletop/core/speechtotext"
	"github.com/koscakluka/ema-tabletop/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Transcribe opens a listen stream and returns once it is connected.
// Callbacks run on the stream's read goroutine in message order.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "transcription stream open")
	defer span.End()

	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := listenEncodingFor(options.EncodingInfo)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.String("transcription.encoding", encoding.name),
		attribute.Int("transcription.sample_rate", encoding.sampleRate),
		attribute.Int("transcription.keyterms", len(options.Keyterms)),
	)

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return ErrStreaming
	}

	conn, err := s.connect(ctx, connectionOptions{
		sampleRate: encoding.sampleRate,
		encoding:   encoding.name,
		language:   options.Language,
		keyterms:   options.Keyterms,

		enhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		interimResults: options.InterimTranscriptionCallback != nil,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.conn = conn
	s.readDone = make(chan struct{})
	s.lastMsgTs = time.Now()
	s.accumulatedTranscript = ""
	s.unendedSegment = false
	go s.readAndProcessMessages(ctx, conn, s.readDone, *options)

	return nil
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotStreaming
	}
	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Close asks the server to flush pending results and waits until it ends
// the stream or ctx is done. Closing an idle client is a no-op.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	s.connMu.Lock()
	conn, readDone := s.conn, s.readDone
	var err error
	if conn != nil {
		err = conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)})
	}
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}
	if err != nil {
		err = fmt.Errorf("failed to request stream close: %w", err)
	}

	select {
	case <-readDone:
	case <-ctx.Done():
		conn.Close()
		<-readDone
		err = errors.Join(err, ctx.Err())
	}
	return err
}

func (s *TranscriptionClient) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		logger.Warn("failed to write keepalive to deepgram", "error", err)
	}
}

func (s *TranscriptionClient) sinceLastAudio() time.Duration {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return time.Since(s.lastMsgTs)
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, done chan struct{}, options speechtotext.TranscriptionOptions) {
	keepAliveCtx, keepAliveCancel := context.WithCancel(ctx)
	defer func() {
		keepAliveCancel()

		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		conn.Close()
		close(done)
	}()

	go s.keepAlive(keepAliveCtx)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Error("failed to read deepgram websocket message", "error", err)
				if options.ErrorCallback != nil {
					options.ErrorCallback(fmt.Errorf("transcription stream lost: %w", err))
				}
			}
			// Whatever was said before the stream ended still counts.
			if strings.TrimSpace(s.accumulatedTranscript) != "" {
				s.onSpeechEnded(options)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, options)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}
		if msgResp.IsFinal {
			if transcript != "" {
				s.accumulatedTranscript += " " + transcript
				s.unendedSegment = true
				if options.InterimTranscriptionCallback != nil {
					options.InterimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript))
				}
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded(options)
			}
		} else if transcript != "" && options.InterimTranscriptionCallback != nil {
			options.InterimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment {
			s.onSpeechEnded(options)
		}

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
	}
}

func (s *TranscriptionClient) onSpeechEnded(options speechtotext.TranscriptionOptions) {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if options.TranscriptionCallback != nil && len(fullTranscript) > 0 {
		options.TranscriptionCallback(fullTranscript)
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

// keepAlive stops the server from closing the stream while the microphone
// is quiet, e.g. when it is paused for playback.
func (s *TranscriptionClient) keepAlive(ctx context.Context) {
	const (
		checkInterval     = 500 * time.Millisecond
		keepAliveInterval = 5 * time.Second
	)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.sinceLastAudio() < keepAliveInterval {
				lastKeepAliveTime = nil
				continue
			}
			if lastKeepAliveTime == nil || time.Since(*lastKeepAliveTime) >= keepAliveInterval {
				lastKeepAliveTime = utils.Ptr(time.Now())
				s.sendKeepAlive()
			}
		}
	}
}
