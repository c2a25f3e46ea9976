package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/logger"
	"golang.org/x/sync/errgroup"
)

type BatchOptions struct {
	// Reeval also picks evaluated submissions.
	Reeval bool
	// Parallel bounds how many submissions are evaluated at once.
	Parallel int
}

type BatchReport struct {
	Evaluated []*course.EvaluationResult
	Skipped   []uuid.UUID
	Failed    map[uuid.UUID]error
}

// RunBatch evaluates every pending or notified submission and retries failed
// ones.
func (e *Evaluator) RunBatch(ctx context.Context, opts BatchOptions) (BatchReport, error) {
	log := logger.FromContext(ctx)

	statuses := []course.SubmStatus{course.SubmPending, course.SubmNotified, course.SubmFailed}
	if opts.Reeval {
		statuses = append(statuses, course.SubmEvaluated)
	}
	subms, err := e.store.ListSubmissions(ctx, coursedb.SubmFilter{Statuses: statuses})
	if err != nil {
		return BatchReport{}, fmt.Errorf("list submissions: %w", err)
	}
	log.Info("found submissions to evaluate", slog.Int("count", len(subms)))

	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	report := BatchReport{Failed: map[uuid.UUID]error{}}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(parallel)
	for _, s := range subms {
		g.Go(func() error {
			res, err := e.Evaluate(ctx, s.UUID, opts.Reeval)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAlreadyEvaluated):
				report.Skipped = append(report.Skipped, s.UUID)
			case err != nil:
				log.Error("evaluation failed",
					slog.String("subm_uuid", s.UUID.String()),
					slog.Any("error", err))
				report.Failed[s.UUID] = err
			default:
				report.Evaluated = append(report.Evaluated, res)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

// markFailed records that the evaluator could not produce a result. A
// cancelled run leaves the status alone so the next run picks it up.
func (e *Evaluator) markFailed(ctx context.Context, id uuid.UUID) {
	if ctx.Err() != nil {
		return
	}
	if err := e.store.SetSubmStatus(ctx, id, course.SubmFailed); err != nil {
		logger.FromContext(ctx).Warn("failed to mark submission failed",
			slog.String("subm_uuid", id.String()),
			slog.Any("error", err))
	}
}
