package host

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/moonshotcommons/timelock/httpserver"
	"github.com/moonshotcommons/timelock/timelock"
)

// DefaultWebhookTimeout is the timeout for webhook requests when none is set.
const DefaultWebhookTimeout = 30 * time.Second

// WebhookPayload is the JSON body sent by a Webhook.
type WebhookPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Selector string `json:"selector"`
	Input    string `json:"input"`
}

// Webhook is a Handler that forwards calls to an HTTP endpoint with a POST request.
// The call succeeds if the endpoint responds with a 2xx status code.
//
// When the call is dispatched by a TimeLock operation, the request carries the operation's re-entry token in the X-Timelock-Reentry header.
// Endpoints that call back into the API while handling the request must send the same header, or their requests wait until this one completes.
type Webhook struct {
	URL string
	// Optional HTTP client
	Client *http.Client
	// Optional timeout for the request; defaults to DefaultWebhookTimeout
	Timeout time.Duration
}

// HandleCall implements Handler.
func (w *Webhook) HandleCall(ctx context.Context, call Call) error {
	payload := WebhookPayload{
		From:  call.From.Hex(),
		To:    call.To.Hex(),
		Value: "0",
		Input: "0x" + hex.EncodeToString(call.Input),
	}
	if call.Value != nil {
		payload.Value = call.Value.String()
	}
	if len(call.Input) >= 4 {
		payload.Selector = "0x" + hex.EncodeToString(call.Input[:4])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set(httpserver.HeaderContentType, "application/json")
	if token := timelock.ReentryToken(ctx); token != "" {
		req.Header.Set(httpserver.HeaderXTimelockReentry, token)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck

	// Drain a bounded amount of the body so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status code %d", res.StatusCode)
	}
	return nil
}
