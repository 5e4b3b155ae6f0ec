// Package deepgram transcribes a live microphone stream with the Deepgram
// listen websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"
)

var (
	ErrMissingAPIKey = errors.New("deepgram api key not found")
	ErrNotStreaming  = errors.New("transcription stream is not open")
	ErrStreaming     = errors.New("transcription stream is already open")
)

type Option func(*TranscriptionClient)

func WithAPIKey(apiKey string) Option {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

func WithEndpoint(endpoint string) Option {
	return func(c *TranscriptionClient) {
		c.endpoint = endpoint
	}
}

func WithModel(model string) Option {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

// TranscriptionClient holds at most one open listen stream at a time.
type TranscriptionClient struct {
	apiKey   string
	endpoint string
	model    string
	dialer   *websocket.Dialer

	connMu    sync.Mutex
	conn      *websocket.Conn
	readDone  chan struct{}
	lastMsgTs time.Time

	accumulatedTranscript string
	unendedSegment        bool
}

// NewTranscriptionClient reads DEEPGRAM_API_KEY when no key is given.
func NewTranscriptionClient(opts ...Option) (*TranscriptionClient, error) {
	client := &TranscriptionClient{
		endpoint: defaultEndpoint,
		model:    defaultModel,
		dialer:   websocket.DefaultDialer,
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

type connectionOptions struct {
	sampleRate int
	encoding   string
	language   string
	keyterms   []string

	enhanceSpeechEndingDetection bool
	interimResults               bool
}

func (s *TranscriptionClient) listenURL(options connectionOptions) (string, error) {
	listenURL, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	language := options.language
	if language == "" {
		language = defaultLanguage
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", s.model)
	queryParams.Set("language", language)
	queryParams.Set("smart_format", "true")
	if options.enhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
		queryParams.Set("vad_events", "true")
	} else if options.interimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	for _, keyterm := range options.keyterms {
		queryParams.Add("keyterm", keyterm)
	}

	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String(), nil
}

func (s *TranscriptionClient) connect(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	listenURL, err := s.listenURL(options)
	if err != nil {
		return nil, err
	}

	conn, _, err := s.dialer.DialContext(ctx, listenURL,
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
