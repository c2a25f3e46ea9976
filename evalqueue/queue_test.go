package evalqueue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/evalqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyRoundTrip(t *testing.T) {
	job := evalqueue.Job{SubmUUID: uuid.New(), Reeval: true, EnqueuedAt: time.Now().UTC().Truncate(time.Second)}
	body, err := evalqueue.EncodeBody(job)
	require.NoError(t, err)
	assert.NotContains(t, body, "subm_uuid")

	got, err := evalqueue.DecodeBody(body)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = evalqueue.DecodeBody("not base64 !!")
	assert.Error(t, err)
}

// fakeSqs keeps messages in memory and records deletions.
type fakeSqs struct {
	mu      sync.Mutex
	bodies  []string
	deleted []string
}

func (f *fakeSqs) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSqs) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Message
	for i, b := range f.bodies {
		body, handle := b, "h"+string(rune('0'+i))
		out = append(out, types.Message{Body: &body, ReceiptHandle: &handle})
	}
	f.bodies = nil
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSqs) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSqsQueue(t *testing.T) {
	fake := &fakeSqs{}
	q := evalqueue.NewSqsQueue(fake, "https://sqs/eval")
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, q.Enqueue(ctx, evalqueue.Job{SubmUUID: id}))
	fake.bodies = append(fake.bodies, "garbage")

	msgs, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].Job.SubmUUID)
	// the malformed message is deleted right away
	assert.Equal(t, []string{"h1"}, fake.deleted)

	require.NoError(t, q.Ack(ctx, msgs[0]))
	assert.Equal(t, []string{"h1", "h0"}, fake.deleted)
}

func TestConsumeAcksOnlySuccess(t *testing.T) {
	fake := &fakeSqs{}
	q := evalqueue.NewSqsQueue(fake, "https://sqs/eval")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, bad := uuid.New(), uuid.New()
	require.NoError(t, q.Enqueue(ctx, evalqueue.Job{SubmUUID: good}))
	require.NoError(t, q.Enqueue(ctx, evalqueue.Job{SubmUUID: bad}))

	var handled []uuid.UUID
	err := evalqueue.Consume(ctx, q, func(ctx context.Context, job evalqueue.Job) error {
		handled = append(handled, job.SubmUUID)
		if len(handled) == 2 {
			cancel()
		}
		if job.SubmUUID == bad {
			return errors.New("evaluation failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{good, bad}, handled)
	assert.Equal(t, []string{"h0"}, fake.deleted)
}
