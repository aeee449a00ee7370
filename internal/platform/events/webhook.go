package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	signatureHeader = "X-Caregate-Signature"
	eventKindHeader = "X-Caregate-Event"
	maxAttempts     = 3
)

// WebhookSink POSTs events to registered endpoints with an HMAC-SHA256
// signature over the body. Failed deliveries are retried with backoff up to
// maxAttempts per endpoint.
type WebhookSink struct {
	urls    []string
	secret  []byte
	client  *http.Client
	logger  zerolog.Logger
	backoff time.Duration
}

func NewWebhookSink(urls []string, secret string, logger zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		urls:    urls,
		secret:  []byte(secret),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: time.Second,
	}
}

// Sign computes the hex HMAC-SHA256 signature for a payload.
func (w *WebhookSink) Sign(body []byte) string {
	mac := hmac.New(sha256.New, w.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (w *WebhookSink) Deliver(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	sig := w.Sign(body)

	var lastErr error
	for _, url := range w.urls {
		if err := w.deliverOne(ctx, url, e, body, sig); err != nil {
			w.logger.Warn().Err(err).Str("url", url).Str("event_id", e.ID.String()).Msg("webhook delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

func (w *WebhookSink) deliverOne(ctx context.Context, url string, e *Event, body []byte, sig string) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(signatureHeader, sig)
		req.Header.Set(eventKindHeader, string(e.Kind))

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("endpoint returned %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client errors will not succeed on retry.
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
