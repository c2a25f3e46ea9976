// Package evalnotify posts deployment notifications to the evaluation API.
package evalnotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/logger"
	"github.com/programme-lv/pagesforge/reqsign"
)

// StatusError is a non-2xx answer from the evaluation API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluation api answered %d: %s", e.StatusCode, e.Body)
}

type Notifier struct {
	client      *http.Client
	secret      string
	maxAttempts int
	initial     time.Duration
}

// NewNotifier signs notifications with secret. Up to five attempts are made,
// waiting 1, 2, 4 and 8 seconds in between, each bounded by 30 seconds.
func NewNotifier(secret string) *Notifier {
	return &Notifier{
		client:      &http.Client{Timeout: 30 * time.Second},
		secret:      secret,
		maxAttempts: 5,
		initial:     time.Second,
	}
}

// WithInitialDelay changes the first backoff delay; later delays double.
func (n *Notifier) WithInitialDelay(d time.Duration) *Notifier {
	n.initial = d
	return n
}

func (n *Notifier) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 8 * n.initial
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.maxAttempts-1)), ctx)
}

// Notify delivers note to evaluationURL. 4xx answers other than 429 are not
// retried.
func (n *Notifier) Notify(ctx context.Context, evaluationURL string, note course.Notification) error {
	log := logger.FromContext(ctx).With(slog.String("nonce", note.Nonce))

	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := n.post(ctx, evaluationURL, note, body)
		if err == nil {
			return nil
		}
		if se, ok := err.(*StatusError); ok && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("notification attempt failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.Any("error", err))
	}
	if err := backoff.RetryNotify(op, n.backOff(ctx), notify); err != nil {
		return fmt.Errorf("notify evaluation api after %d attempts: %w", attempt, err)
	}
	log.Info("evaluation api notified", slog.Int("attempts", attempt))
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, note course.Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if err := reqsign.SignRequest(req, n.secret, note.Email, reqsign.AudienceEvaluation, note.Nonce, body); err != nil {
		return backoff.Permanent(err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
}
