// Package buildpipe runs generate, deploy and notify for one task as an
// explicit pipeline and journals its progress per nonce.
package buildpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/programme-lv/pagesforge/appgen"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/ghdeploy"
	"github.com/programme-lv/pagesforge/logger"
)

type Generator interface {
	Generate(ctx context.Context, req appgen.Request) (appgen.Artifact, error)
}

type Deployer interface {
	Deploy(ctx context.Context, req ghdeploy.DeployRequest) (ghdeploy.Deployment, error)
}

type Notifier interface {
	Notify(ctx context.Context, evaluationURL string, note course.Notification) error
}

var (
	ErrInProgress   = errors.New("build for this nonce is already running")
	ErrNotResumable = errors.New("build has no deployment to resume from")
	ErrUnknownNonce = errors.New("no build for this nonce")
)

// StageError reports which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Pipeline struct {
	gen     Generator
	dep     Deployer
	notif   Notifier
	journal Journal
	now     func() time.Time

	mu     sync.Mutex
	active map[string]bool
}

func NewPipeline(gen Generator, dep Deployer, notif Notifier, journal Journal) *Pipeline {
	return &Pipeline{
		gen:     gen,
		dep:     dep,
		notif:   notif,
		journal: journal,
		now:     time.Now,
		active:  make(map[string]bool),
	}
}

func (p *Pipeline) claim(nonce string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[nonce] {
		return false
	}
	p.active[nonce] = true
	return true
}

func (p *Pipeline) release(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, nonce)
}

// Progress returns the journaled progress of a nonce.
func (p *Pipeline) Progress(ctx context.Context, nonce string) (*Progress, error) {
	pr, err := p.journal.Get(ctx, nonce)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, ErrUnknownNonce
	}
	return pr, nil
}

// Run builds the task. A completed nonce is returned as is, a deployed one
// only retries notify, anything else starts over from generate.
func (p *Pipeline) Run(ctx context.Context, task course.Payload) (*Progress, error) {
	if !p.claim(task.Nonce) {
		return nil, ErrInProgress
	}
	defer p.release(task.Nonce)

	log := logger.FromContext(ctx).With(slog.String("nonce", task.Nonce), slog.String("task", task.Task))
	ctx = logger.WithLogger(ctx, log)

	prev, err := p.journal.Get(ctx, task.Nonce)
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if prev != nil {
		switch prev.State {
		case StateCompleted:
			log.Info("build already completed")
			return prev, nil
		case StateDeployed:
			log.Info("resuming build at notify")
			return p.notify(ctx, prev)
		}
	}

	pr := prev
	if pr == nil {
		pr = &Progress{Nonce: task.Nonce}
	}
	pr.Email = task.Email
	pr.TaskID = task.Task
	pr.Round = task.Round
	pr.EvaluationURL = task.EvaluationURL
	pr.State = StateRunning
	pr.FailedStage = ""
	pr.Deployment = nil
	pr.Stages = nil
	if err := p.save(ctx, pr); err != nil {
		return nil, err
	}

	var art appgen.Artifact
	err = p.stage(ctx, pr, StageGenerate, func() error {
		var err error
		art, err = p.gen.Generate(ctx, appgen.Request{
			Brief:       task.Brief,
			Checks:      task.Checks,
			Attachments: task.Attachments,
		})
		return err
	})
	if err != nil {
		return pr, err
	}

	var dep ghdeploy.Deployment
	err = p.stage(ctx, pr, StageDeploy, func() error {
		var err error
		dep, err = p.dep.Deploy(ctx, ghdeploy.DeployRequest{
			RepoName:    ghdeploy.RepoName(task.Task),
			Description: "Generated app for " + task.Task,
			Files:       art.Files,
			Round:       task.Round,
		})
		return err
	})
	if err != nil {
		return pr, err
	}
	pr.Deployment = &dep
	pr.State = StateDeployed
	if err := p.save(ctx, pr); err != nil {
		return pr, err
	}

	return p.notify(ctx, pr)
}

// Resume retries notify for a build whose deploy already succeeded.
func (p *Pipeline) Resume(ctx context.Context, nonce string) (*Progress, error) {
	if !p.claim(nonce) {
		return nil, ErrInProgress
	}
	defer p.release(nonce)

	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(slog.String("nonce", nonce)))
	pr, err := p.Progress(ctx, nonce)
	if err != nil {
		return nil, err
	}
	switch pr.State {
	case StateCompleted:
		return pr, nil
	case StateDeployed:
		return p.notify(ctx, pr)
	}
	return pr, ErrNotResumable
}

func (p *Pipeline) notify(ctx context.Context, pr *Progress) (*Progress, error) {
	note := course.Notification{
		Email:     pr.Email,
		Task:      pr.TaskID,
		Round:     pr.Round,
		Nonce:     pr.Nonce,
		RepoURL:   pr.Deployment.RepoURL,
		CommitSHA: pr.Deployment.CommitSHA,
		PagesURL:  pr.Deployment.PagesURL,
	}
	err := p.stage(ctx, pr, StageNotify, func() error {
		return p.notif.Notify(ctx, pr.EvaluationURL, note)
	})
	if err != nil {
		return pr, err
	}
	pr.State = StateCompleted
	if err := p.save(ctx, pr); err != nil {
		return pr, err
	}
	logger.FromContext(ctx).Info("build completed", slog.String("pages_url", pr.Deployment.PagesURL))
	return pr, nil
}

// stage runs fn and records its result. On failure the progress is saved
// with the failed stage; a failed notify keeps the deployed state.
func (p *Pipeline) stage(ctx context.Context, pr *Progress, stage Stage, fn func() error) error {
	log := logger.FromContext(ctx)
	res := StageResult{Stage: stage, StartedAt: p.now()}
	err := fn()
	res.FinishedAt = p.now()
	if err == nil {
		res.Status = StageOk
		pr.Stages = append(pr.Stages, res)
		log.Info("stage finished", slog.String("stage", string(stage)),
			slog.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
		return nil
	}

	res.Status = StageFailed
	res.Err = err.Error()
	pr.Stages = append(pr.Stages, res)
	pr.FailedStage = stage
	if stage != StageNotify {
		pr.State = StateFailed
	}
	log.Error("stage failed", slog.String("stage", string(stage)), slog.Any("error", err))
	if saveErr := p.save(ctx, pr); saveErr != nil {
		log.Error("failed to journal stage failure", slog.Any("error", saveErr))
	}
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) save(ctx context.Context, pr *Progress) error {
	pr.UpdatedAt = p.now()
	if err := p.journal.Save(ctx, pr); err != nil {
		return fmt.Errorf("journal progress: %w", err)
	}
	return nil
}
