// Package evalqueue hands submissions from the evaluation API to evaluator
// workers.
package evalqueue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/pagesforge/logger"
)

type Job struct {
	SubmUUID   uuid.UUID `json:"subm_uuid"`
	Reeval     bool      `json:"reeval,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Msg is a received job. Handle identifies it for Ack.
type Msg struct {
	Job    Job
	Handle string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Receive waits briefly for jobs and may return none.
	Receive(ctx context.Context) ([]Msg, error)
	Ack(ctx context.Context, msg Msg) error
}

// EncodeBody serializes a job as base64 of zstd compressed JSON.
func EncodeBody(job Job) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return "", fmt.Errorf("compress job: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("compress job: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func DecodeBody(body string) (Job, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Job{}, fmt.Errorf("decode base64: %w", err)
	}
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Job{}, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	if err != nil {
		return Job{}, fmt.Errorf("decompress job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// Consume receives jobs until ctx is done. Jobs are acknowledged only when
// handle succeeds; failed ones reappear after the visibility timeout.
func Consume(ctx context.Context, q Queue, handle func(ctx context.Context, job Job) error) error {
	log := logger.FromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		msgs, err := q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("failed to receive jobs", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			jobLog := log.With(slog.String("subm_uuid", m.Job.SubmUUID.String()))
			if err := handle(logger.WithLogger(ctx, jobLog), m.Job); err != nil {
				jobLog.Error("job failed", slog.Any("error", err))
				continue
			}
			if err := q.Ack(ctx, m); err != nil {
				jobLog.Error("failed to ack job", slog.Any("error", err))
			}
		}
	}
}
