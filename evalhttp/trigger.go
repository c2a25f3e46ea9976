package evalhttp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/evalqueue"
	"github.com/programme-lv/pagesforge/evaluator"
	"github.com/programme-lv/pagesforge/logger"
)

// Trigger starts the evaluation of a stored submission.
type Trigger interface {
	Trigger(ctx context.Context, submID uuid.UUID) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, submID uuid.UUID, reeval bool) (*course.EvaluationResult, error)
}

// InlineTrigger evaluates in a background goroutine of the API process.
type InlineTrigger struct {
	ev Evaluator
	wg sync.WaitGroup
}

func NewInlineTrigger(ev Evaluator) *InlineTrigger {
	return &InlineTrigger{ev: ev}
}

func (t *InlineTrigger) Trigger(ctx context.Context, submID uuid.UUID) error {
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, err := t.ev.Evaluate(ctx, submID, false)
		if err != nil && !errors.Is(err, evaluator.ErrAlreadyEvaluated) {
			// the evaluator has already marked the submission failed
			logger.FromContext(ctx).Error("inline evaluation failed",
				slog.String("subm_uuid", submID.String()),
				slog.Any("error", err))
		}
	}()
	return nil
}

// Wait blocks until started evaluations have finished.
func (t *InlineTrigger) Wait() {
	t.wg.Wait()
}

// QueueTrigger hands submissions to evaluator workers through a queue.
type QueueTrigger struct {
	q evalqueue.Queue
}

func NewQueueTrigger(q evalqueue.Queue) *QueueTrigger {
	return &QueueTrigger{q: q}
}

func (t *QueueTrigger) Trigger(ctx context.Context, submID uuid.UUID) error {
	return t.q.Enqueue(ctx, evalqueue.Job{SubmUUID: submID, EnqueuedAt: time.Now().UTC()})
}
