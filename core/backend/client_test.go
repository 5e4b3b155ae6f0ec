package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-tabletop/core/actions"
	"github.com/koscakluka/ema-tabletop/core/speech"
	"github.com/koscakluka/ema-tabletop/core/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTransport struct {
	failures atomic.Int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(req)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, failures int32) (*Client, *flakyTransport) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	transport := &flakyTransport{next: http.DefaultTransport}
	transport.failures.Store(failures)
	client, err := NewClient(server.URL+"/",
		WithAPIKey("secret"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)
	return client, transport
}

func TestCompleteSendsMessagesAndContext(t *testing.T) {
	var got CompletionRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"type":"text_response","message":"Deal seven cards."}`)
	}, 0)

	completion, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "how many cards?"}},
		Context: CompletionContext{
			Mode:             "quick_start",
			Game:             "Go Fish",
			AvailableActions: actions.NewCatalogue().Schemas(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, CompletionTextResponse, completion.Type)
	assert.Equal(t, "Deal seven cards.", completion.Message)
	assert.Nil(t, completion.Action)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "how many cards?", got.Messages[0].Content)
	assert.Equal(t, "Go Fish", got.Context.Game)
	assert.NotEmpty(t, got.Context.AvailableActions)
}

func TestCompleteDecodesActionProposal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"action_proposal","message":"Add it?","action":{"type":"add_house_rule","params":{"game":"Uno","rule":"Stack draw twos"}}}`)
	}, 0)

	completion, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, CompletionActionProposal, completion.Type)
	require.NotNil(t, completion.Action)
	assert.Equal(t, "add_house_rule", completion.Action.Type)
	assert.Equal(t, "Uno", completion.Action.Params["game"])
}

func TestCompleteRejectsProposalWithoutAction(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"action_proposal","message":"Add it?"}`)
	}, 0)

	_, err := client.Complete(context.Background(), CompletionRequest{})
	assert.Error(t, err)
}

func TestCompleteRetriesTransportFailureOnce(t *testing.T) {
	var served atomic.Int32
	client, transport := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		_, _ = io.WriteString(w, `{"type":"text_response","message":"ok"}`)
	}, 1)

	completion, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Message)
	assert.EqualValues(t, 2, transport.calls.Load())
	assert.EqualValues(t, 1, served.Load())
}

func TestCompleteGivesUpAfterSecondTransportFailure(t *testing.T) {
	client, transport := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}, 5)

	_, err := client.Complete(context.Background(), CompletionRequest{})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "complete", transportErr.Op)
	assert.EqualValues(t, 2, transport.calls.Load())
}

func TestCompleteNeverRetriesAPIError(t *testing.T) {
	var served atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"quota exceeded"}`)
	}, 0)

	_, err := client.Complete(context.Background(), CompletionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "quota exceeded", apiErr.Message)
	assert.EqualValues(t, 1, served.Load())
}

func TestExecuteActionIsNotRetried(t *testing.T) {
	client, transport := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}, 1)

	_, err := client.ExecuteAction(context.Background(), "add_friend", map[string]any{"name": "Ana"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.EqualValues(t, 1, transport.calls.Load())
}

func TestExecuteActionPostsTypeAndParams(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, actionsPath, r.URL.Path)
		var body struct {
			ActionType string         `json:"actionType"`
			Params     map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "add_friend", body.ActionType)
		assert.Equal(t, "Ana", body.Params["name"])
		_, _ = io.WriteString(w, `{"success":true,"message":"Ana added."}`)
	}, 0)

	result, err := client.ExecuteAction(context.Background(), "add_friend", map[string]any{"name": "Ana"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Ana added.", result.Message)
}

func TestCreateVoiceSessionReturnsCredential(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req voice.BootstrapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alloy", req.Voice)
		assert.Equal(t, "Go Fish", req.Context.Game)
		_, _ = io.WriteString(w, `{"client_secret":{"value":"ek_123","expires_at":4102444800}}`)
	}, 0)

	credential, err := client.CreateVoiceSession(context.Background(), voice.BootstrapRequest{
		Voice:   "alloy",
		Context: voice.SessionContext{Game: "Go Fish"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ek_123", credential.Value)
	assert.False(t, credential.Expired(time.Now()))
}

func TestCreateVoiceSessionRejectsEmptyCredential(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}, 0)

	_, err := client.CreateVoiceSession(context.Background(), voice.BootstrapRequest{})
	assert.ErrorIs(t, err, errEmptyCredential)
}

func TestSynthesizeReturnsRawAudio(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, speechPath, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Shuffle the deck.", body["text"])
		assert.Equal(t, "calm", body["instructions"])
		_, _ = w.Write([]byte{1, 2, 3})
	}, 0)

	audio, err := client.Synthesize(context.Background(), "Shuffle the deck.",
		speech.SynthesisOptions{Voice: "alloy", Instructions: "calm"})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, audio)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}
