// Package dispatch sends round 1 and round 2 tasks to participant endpoints
// and records the outcome of every attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/logger"
	"golang.org/x/sync/errgroup"
)

type Outcome struct {
	Email      string
	TaskID     string
	Nonce      string
	StatusCode int
	Err        string
}

type Report struct {
	Round   int
	Sent    []Outcome
	Skipped []Outcome
	Failed  []Outcome
}

type Dispatcher struct {
	store         coursedb.Store
	templates     *course.TemplateSet
	sender        Sender
	evaluationURL string
	parallel      int
	now           func() time.Time
}

type Option func(*Dispatcher)

// WithParallel bounds the number of concurrent dispatch requests.
func WithParallel(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.parallel = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(store coursedb.Store, templates *course.TemplateSet, sender Sender, evaluationURL string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:         store,
		templates:     templates,
		sender:        sender,
		evaluationURL: evaluationURL,
		parallel:      4,
		now:           time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// seed makes the template choice stable for a participant within one hour.
func (d *Dispatcher) seed(email string) string {
	return email + ":" + d.now().UTC().Format("2006-01-02-15")
}

// collector gathers outcomes from concurrent workers.
type collector struct {
	mu     sync.Mutex
	report Report
}

func (c *collector) sent(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Sent = append(c.report.Sent, o)
}

func (c *collector) skipped(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Skipped = append(c.report.Skipped, o)
}

func (c *collector) failed(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Failed = append(c.report.Failed, o)
}

// Round1 registers every participant and sends each one a round 1 task. A
// participant whose earlier dispatch failed gets the same task again.
func (d *Dispatcher) Round1(ctx context.Context, regs []Registration) (Report, error) {
	log := logger.FromContext(ctx)
	log.Info("starting round 1 dispatch", slog.Int("participants", len(regs)))

	c := &collector{report: Report{Round: 1}}
	var g errgroup.Group
	g.SetLimit(d.parallel)
	for _, reg := range regs {
		g.Go(func() error {
			d.round1(ctx, reg, c)
			return nil
		})
	}
	_ = g.Wait()
	return c.report, ctx.Err()
}

func (d *Dispatcher) round1(ctx context.Context, reg Registration, c *collector) {
	log := logger.FromContext(ctx).With(slog.String("email", reg.Email))
	fail := func(taskID string, err error) {
		log.Error("round 1 dispatch failed", slog.Any("error", err))
		c.failed(Outcome{Email: reg.Email, TaskID: taskID, Err: err.Error()})
	}

	participant := course.Participant{Email: reg.Email, Endpoint: reg.Endpoint, Secret: reg.Secret}
	if t, err := time.Parse(time.RFC3339, reg.Timestamp); err == nil {
		participant.RegisteredAt = t
	}
	if err := d.store.UpsertParticipant(ctx, participant); err != nil {
		fail("", fmt.Errorf("store participant: %w", err))
		return
	}

	task, err := d.store.LatestTask(ctx, reg.Email, 1)
	switch {
	case err == nil && task.Dispatched():
		log.Info("skipping, round 1 already sent", slog.String("task", task.TaskID))
		c.skipped(Outcome{Email: reg.Email, TaskID: task.TaskID, Nonce: task.Nonce, StatusCode: task.StatusCode})
		return
	case err == nil:
		log.Info("resending failed round 1 task", slog.String("task", task.TaskID))
	case errors.Is(err, coursedb.ErrNotFound):
		rendered, err := d.templates.Render(d.seed(reg.Email), 1)
		if err != nil {
			fail("", fmt.Errorf("render template: %w", err))
			return
		}
		task, err = d.newTask(ctx, rendered, reg.Email, reg.Endpoint)
		if err != nil {
			fail(rendered.TaskID(), err)
			return
		}
	default:
		fail("", fmt.Errorf("load round 1 task: %w", err))
		return
	}

	d.send(ctx, task, reg.Endpoint, reg.Secret, c)
}

// Round2 sends a follow-up task of the same template family to every
// participant with a round 1 submission.
func (d *Dispatcher) Round2(ctx context.Context) (Report, error) {
	log := logger.FromContext(ctx)

	subms, err := d.store.ListSubmissions(ctx, coursedb.SubmFilter{Round: 1})
	if err != nil {
		return Report{}, fmt.Errorf("list round 1 submissions: %w", err)
	}
	log.Info("starting round 2 dispatch", slog.Int("round1_submissions", len(subms)))

	c := &collector{report: Report{Round: 2}}
	seen := map[string]bool{}
	var g errgroup.Group
	g.SetLimit(d.parallel)
	for _, s := range subms {
		if seen[s.Email] {
			continue
		}
		seen[s.Email] = true
		g.Go(func() error {
			d.round2(ctx, s, c)
			return nil
		})
	}
	_ = g.Wait()
	return c.report, ctx.Err()
}

func (d *Dispatcher) round2(ctx context.Context, subm course.Submission, c *collector) {
	log := logger.FromContext(ctx).With(slog.String("email", subm.Email))
	fail := func(taskID string, err error) {
		log.Error("round 2 dispatch failed", slog.Any("error", err))
		c.failed(Outcome{Email: subm.Email, TaskID: taskID, Err: err.Error()})
	}

	participant, err := d.store.GetParticipant(ctx, subm.Email)
	if err != nil {
		fail("", fmt.Errorf("load participant: %w", err))
		return
	}

	task, err := d.store.LatestTask(ctx, subm.Email, 2)
	switch {
	case err == nil && task.Dispatched():
		log.Info("skipping, round 2 already sent", slog.String("task", task.TaskID))
		c.skipped(Outcome{Email: subm.Email, TaskID: task.TaskID, Nonce: task.Nonce, StatusCode: task.StatusCode})
		return
	case err == nil:
		log.Info("resending failed round 2 task", slog.String("task", task.TaskID))
	case errors.Is(err, coursedb.ErrNotFound):
		r1, err := d.store.GetTask(ctx, subm.TaskUUID)
		if err != nil {
			fail("", fmt.Errorf("load round 1 task: %w", err))
			return
		}
		rendered, err := d.templates.RenderFrom(r1.TemplateID, d.seed(subm.Email), 2)
		if err != nil {
			fail("", fmt.Errorf("render template: %w", err))
			return
		}
		task, err = d.newTask(ctx, rendered, subm.Email, participant.Endpoint)
		if err != nil {
			fail(rendered.TaskID(), err)
			return
		}
	default:
		fail("", fmt.Errorf("load round 2 task: %w", err))
		return
	}

	d.send(ctx, task, participant.Endpoint, participant.Secret, c)
}

func (d *Dispatcher) newTask(ctx context.Context, r course.Rendered, email, endpoint string) (course.Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return course.Task{}, err
	}
	nonce, err := uuid.NewV7()
	if err != nil {
		return course.Task{}, err
	}
	task := course.Task{
		UUID:          id,
		TaskID:        r.TaskID(),
		TemplateID:    r.TemplateID,
		Round:         r.Round,
		Email:         email,
		Nonce:         nonce.String(),
		Brief:         r.Brief,
		Checks:        r.Checks,
		Attachments:   r.Attachments,
		EvaluationURL: d.evaluationURL,
		Endpoint:      endpoint,
		CreatedAt:     d.now(),
	}
	if err := d.store.InsertTask(ctx, task); err != nil {
		return course.Task{}, fmt.Errorf("store task: %w", err)
	}
	return task, nil
}

// send posts the task to the participant's current endpoint and records the
// answer. Failures are not retried here; the next run resends them.
func (d *Dispatcher) send(ctx context.Context, task course.Task, endpoint, secret string, c *collector) {
	log := logger.FromContext(ctx).With(
		slog.String("email", task.Email),
		slog.String("task", task.TaskID),
		slog.Int("round", task.Round))

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	status, sendErr := d.sender.Send(sendCtx, endpoint, secret, task.Payload())
	cancel()
	if sendErr == nil && (status < 200 || status >= 300) {
		sendErr = fmt.Errorf("endpoint answered %d", status)
	}

	var errPtr *string
	if sendErr != nil {
		msg := sendErr.Error()
		errPtr = &msg
	}
	if err := d.store.RecordDispatch(ctx, task.UUID, endpoint, status, errPtr); err != nil {
		log.Error("failed to record dispatch", slog.Any("error", err))
	}

	o := Outcome{Email: task.Email, TaskID: task.TaskID, Nonce: task.Nonce, StatusCode: status}
	if sendErr != nil {
		log.Warn("task not delivered", slog.Int("status", status), slog.Any("error", sendErr))
		o.Err = sendErr.Error()
		c.failed(o)
		return
	}
	log.Info("task delivered", slog.Int("status", status))
	c.sent(o)
}
