package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/reqsign"
)

// Sender posts a task to a student endpoint. A zero status means the endpoint
// was not reached.
type Sender interface {
	Send(ctx context.Context, endpoint, secret string, payload course.Payload) (int, error)
}

type HttpSender struct {
	client *http.Client
}

func NewHttpSender() *HttpSender {
	return &HttpSender{client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *HttpSender) Send(ctx context.Context, endpoint, secret string, payload course.Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := reqsign.SignRequest(req, secret, payload.Email, reqsign.AudienceStudent, payload.Nonce, body); err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post task: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("endpoint answered %d: %s", resp.StatusCode, snippet)
	}
	return resp.StatusCode, nil
}
