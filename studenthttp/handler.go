// Package studenthttp serves the student endpoint that receives tasks and
// runs the build pipeline for them.
package studenthttp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/pagesforge/buildpipe"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/reqsign"
	"github.com/programme-lv/pagesforge/srvcerror"
)

type Builder interface {
	Run(ctx context.Context, task course.Payload) (*buildpipe.Progress, error)
	Resume(ctx context.Context, nonce string) (*buildpipe.Progress, error)
	Progress(ctx context.Context, nonce string) (*buildpipe.Progress, error)
}

type StudentHttpHandler struct {
	builder Builder
	secret  string
	async   bool
	// owner, when set, is the only email tasks may be addressed to
	owner string

	// background builds started in async mode
	wg sync.WaitGroup
}

type Option func(*StudentHttpHandler)

// WithOwner refuses tasks addressed to any email other than owner.
func WithOwner(email string) Option {
	return func(h *StudentHttpHandler) {
		h.owner = strings.TrimSpace(email)
	}
}

func NewStudentHttpHandler(builder Builder, secret string, async bool, opts ...Option) *StudentHttpHandler {
	h := &StudentHttpHandler{
		builder: builder,
		secret:  secret,
		async:   async,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *StudentHttpHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/builds/{nonce}", h.GetBuild)
	r.Group(func(r chi.Router) {
		r.Use(reqsign.Middleware(reqsign.AudienceStudent, reqsign.StaticSecret(h.secret)))
		r.Post("/api/build", h.PostBuild)
		r.Post("/api/builds/{nonce}/resume", h.ResumeBuild)
	})
}

// Wait blocks until background builds have finished.
func (h *StudentHttpHandler) Wait() {
	h.wg.Wait()
}

// mapBuildErr turns pipeline errors into service errors.
func mapBuildErr(err error) error {
	var stageErr *buildpipe.StageError
	switch {
	case errors.Is(err, buildpipe.ErrInProgress):
		return ErrBuildInProgress().SetDebug(err)
	case errors.Is(err, buildpipe.ErrUnknownNonce):
		return ErrBuildNotFound().SetDebug(err)
	case errors.Is(err, buildpipe.ErrNotResumable):
		return ErrNotResumable().SetDebug(err)
	case errors.As(err, &stageErr):
		return srvcerror.ErrUpstreamFailed(fmt.Sprintf("%s stage failed", stageErr.Stage)).SetDebug(err)
	}
	return err
}
