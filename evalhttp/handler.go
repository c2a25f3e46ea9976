// Package evalhttp serves the evaluation API that records submissions from
// student endpoints and exposes their results.
package evalhttp

import (
	"context"
	"errors"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/reqsign"
	"golang.org/x/sync/singleflight"
)

type EvalHttpHandler struct {
	store coursedb.Store
	// nil leaves submissions for a batch run
	trigger Trigger

	// listCache and singleflight keep dashboard polling off the database
	listCache *cache.Cache
	sfGroup   singleflight.Group
}

func NewEvalHttpHandler(store coursedb.Store, trigger Trigger) *EvalHttpHandler {
	return &EvalHttpHandler{
		store:     store,
		trigger:   trigger,
		listCache: cache.New(1*time.Second, 1*time.Minute),
	}
}

func (h *EvalHttpHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/submissions", h.ListSubmissions)
	r.Get("/api/submissions/{subm-uuid}/results", h.GetResults)
	r.Group(func(r chi.Router) {
		r.Use(reqsign.Middleware(reqsign.AudienceEvaluation, h.participantSecret))
		r.Post("/api/submit", h.PostSubmit)
	})
}

func (h *EvalHttpHandler) participantSecret(ctx context.Context, email string) (string, error) {
	p, err := h.store.GetParticipant(ctx, email)
	if errors.Is(err, coursedb.ErrNotFound) {
		return "", reqsign.ErrUnknownSubject
	}
	if err != nil {
		return "", err
	}
	return p.Secret, nil
}
