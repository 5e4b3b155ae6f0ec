package backend

import (
	"context"
	"errors"
	"time"

	"github.com/koscakluka/ema-tabletop/core/voice"
)

var errEmptyCredential = errors.New("voice session response has no credential")

// CreateVoiceSession implements voice.Bootstrapper.
func (c *Client) CreateVoiceSession(ctx context.Context, req voice.BootstrapRequest) (voice.Credential, error) {
	ctx, span := tracer.Start(ctx, "backend create voice session")
	defer span.End()

	var resp struct {
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, span, request{
		op:   "create voice session",
		path: voiceSessionsPath,
		body: req,
	}, &resp); err != nil {
		return voice.Credential{}, recordError(span, err)
	}
	if resp.ClientSecret.Value == "" {
		return voice.Credential{}, recordError(span, errEmptyCredential)
	}

	credential := voice.Credential{Value: resp.ClientSecret.Value, URL: resp.URL}
	if resp.ClientSecret.ExpiresAt > 0 {
		credential.ExpiresAt = time.Unix(resp.ClientSecret.ExpiresAt, 0)
	}
	return credential, nil
}
