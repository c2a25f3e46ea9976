package evalqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/pagesforge/logger"
)

// SqsAPI is the part of *sqs.Client the queue uses.
type SqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SqsQueue struct {
	client   SqsAPI
	queueUrl string
}

func NewSqsQueue(client SqsAPI, queueUrl string) *SqsQueue {
	return &SqsQueue{client: client, queueUrl: queueUrl}
}

func (q *SqsQueue) Enqueue(ctx context.Context, job Job) error {
	body, err := EncodeBody(job)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueUrl),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to evaluation queue: %w", err)
	}
	return nil
}

func (q *SqsQueue) Receive(ctx context.Context) ([]Msg, error) {
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueUrl),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	msgs := make([]Msg, 0, len(output.Messages))
	for _, m := range output.Messages {
		if m.Body == nil || m.ReceiptHandle == nil {
			continue
		}
		job, err := DecodeBody(*m.Body)
		if err != nil {
			// undecodable messages would be redelivered forever
			logger.FromContext(ctx).Warn("dropping malformed job", slog.Any("error", err))
			_ = q.Ack(ctx, Msg{Handle: *m.ReceiptHandle})
			continue
		}
		msgs = append(msgs, Msg{Job: job, Handle: *m.ReceiptHandle})
	}
	return msgs, nil
}

func (q *SqsQueue) Ack(ctx context.Context, msg Msg) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueUrl),
		ReceiptHandle: aws.String(msg.Handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
