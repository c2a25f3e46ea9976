// Package evaluator scores submitted repositories and their Pages sites.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/llm"
	"github.com/programme-lv/pagesforge/logger"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSubmNotFound = errors.New("submission not found")
	// ErrAlreadyEvaluated is returned for evaluated submissions unless
	// re-evaluation is requested.
	ErrAlreadyEvaluated = errors.New("submission already evaluated")
)

// FileReader reads a file of a repository at a commit. A missing file must
// wrap ghdeploy.ErrFileNotFound.
type FileReader interface {
	ReadFile(ctx context.Context, repoURL, ref, path string) ([]byte, error)
}

// Uploader stores screenshot thumbnails and returns their URL.
type Uploader interface {
	Upload(ctx context.Context, content []byte, key string, mediaType string) (string, error)
}

type Evaluator struct {
	store      coursedb.Store
	files      FileReader
	llm        llm.Completer
	model      string
	browser    Browser
	shots      Uploader
	navTimeout time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

type Option func(*Evaluator)

// WithLLM enables the README and code review checks.
func WithLLM(c llm.Completer, model string) Option {
	return func(e *Evaluator) {
		e.llm = c
		e.model = model
	}
}

func WithBrowser(b Browser) Option {
	return func(e *Evaluator) { e.browser = b }
}

// WithScreenshots uploads a thumbnail of every loaded page.
func WithScreenshots(u Uploader) Option {
	return func(e *Evaluator) { e.shots = u }
}

// WithRetryDelay sets the pause between page load attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Evaluator) { e.retryDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func New(store coursedb.Store, files FileReader, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:      store,
		files:      files,
		navTimeout: 15 * time.Second,
		retryDelay: 5 * time.Second,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate runs every check family against the submission and stores the
// result. Unknown ids yield ErrSubmNotFound and write nothing. Any other
// failure after the submission is loaded marks it failed.
func (e *Evaluator) Evaluate(ctx context.Context, submID uuid.UUID, reeval bool) (*course.EvaluationResult, error) {
	subm, err := e.store.GetSubmission(ctx, submID)
	if errors.Is(err, coursedb.ErrNotFound) {
		return nil, ErrSubmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if subm.Status == course.SubmEvaluated && !reeval {
		return nil, ErrAlreadyEvaluated
	}

	res, err := e.evaluate(ctx, subm, reeval)
	if err != nil && !errors.Is(err, ErrAlreadyEvaluated) && !errors.Is(err, ErrSubmNotFound) {
		e.markFailed(ctx, subm.UUID)
	}
	return res, err
}

func (e *Evaluator) evaluate(ctx context.Context, subm course.Submission, reeval bool) (*course.EvaluationResult, error) {
	log := logger.FromContext(ctx).With(slog.String("subm_uuid", subm.UUID.String()))

	task, err := e.store.GetTask(ctx, subm.TaskUUID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", subm.TaskUUID, err)
	}

	log.Info("evaluating submission",
		slog.String("email", subm.Email),
		slog.String("task", subm.TaskID),
		slog.Int("round", subm.Round))

	res := &course.EvaluationResult{
		UUID:      uuid.New(),
		SubmUUID:  subm.UUID,
		CreatedAt: e.now(),
	}
	res.Checks = e.runChecks(logger.WithLogger(ctx, log), res.UUID, subm, task)
	res.Summarize()

	if err := e.store.SaveResult(ctx, res, reeval); err != nil {
		if errors.Is(err, coursedb.ErrNotFound) {
			return nil, ErrSubmNotFound
		}
		if errors.Is(err, coursedb.ErrAlreadyEvaluated) {
			log.Info("submission was evaluated by another run, dropping result")
			return nil, ErrAlreadyEvaluated
		}
		return nil, fmt.Errorf("save result: %w", err)
	}
	log.Info("evaluation stored",
		slog.Int("attempt", res.Attempt),
		slog.Float64("aggregate", res.Aggregate))
	return res, nil
}

// runChecks runs the families concurrently. Families report failures as
// scores, so one family never stops the others.
func (e *Evaluator) runChecks(ctx context.Context, resultID uuid.UUID, subm course.Submission, task course.Task) []course.CheckResult {
	families := map[course.CheckKind]func(context.Context) []course.CheckResult{
		course.CheckLicense: func(ctx context.Context) []course.CheckResult {
			return []course.CheckResult{e.checkLicense(ctx, subm)}
		},
		course.CheckReadme: func(ctx context.Context) []course.CheckResult {
			return []course.CheckResult{e.checkReadme(ctx, subm)}
		},
		course.CheckStatic: func(ctx context.Context) []course.CheckResult {
			return e.checkStatic(ctx, subm, task.Checks)
		},
		course.CheckRubric: func(ctx context.Context) []course.CheckResult {
			return []course.CheckResult{e.checkRubric(ctx, subm)}
		},
		course.CheckFunctional: func(ctx context.Context) []course.CheckResult {
			return e.checkFunctional(ctx, resultID, subm, task.Checks)
		},
	}

	out := make([][]course.CheckResult, len(course.CheckKinds))
	var g errgroup.Group
	for i, kind := range course.CheckKinds {
		run := families[kind]
		g.Go(func() error {
			out[i] = run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var checks []course.CheckResult
	for _, rs := range out {
		checks = append(checks, rs...)
	}
	return checks
}

func outcome(kind course.CheckKind, name string, passed bool, reason, logs string) course.CheckResult {
	score := 0.0
	if passed {
		score = 1
	}
	return course.CheckResult{
		Kind:   kind,
		Name:   name,
		Score:  score,
		Passed: passed,
		Reason: reason,
		Logs:   logs,
	}
}

func preview(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
