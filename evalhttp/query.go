package evalhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/httpjson"
	"github.com/programme-lv/pagesforge/logger"
)

func (h *EvalHttpHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var filter coursedb.SubmFilter
	if v := r.URL.Query().Get("round"); v != "" {
		round, err := strconv.Atoi(v)
		if err != nil || round < 1 {
			httpjson.HandleError(log, w, ErrInvalidQuery("round must be a positive integer"))
			return
		}
		filter.Round = round
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Statuses = []course.SubmStatus{course.SubmStatus(v)}
	}

	key := r.URL.Query().Encode()
	if cached, ok := h.listCache.Get(key); ok {
		httpjson.WriteSuccessJson(w, cached)
		return
	}
	v, err, _ := h.sfGroup.Do(key, func() (interface{}, error) {
		// shared by every caller waiting on key, so one disconnect must not cancel it
		subms, err := h.store.ListSubmissions(context.WithoutCancel(r.Context()), filter)
		if err != nil {
			return nil, err
		}
		if subms == nil {
			subms = []course.Submission{}
		}
		h.listCache.Set(key, subms, cache.DefaultExpiration)
		return subms, nil
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, v)
}

func (h *EvalHttpHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "subm-uuid"))
	if err != nil {
		httpjson.HandleError(log, w, ErrInvalidQuery("submission id is not a uuid"))
		return
	}
	if _, err := h.store.GetSubmission(r.Context(), id); err != nil {
		if errors.Is(err, coursedb.ErrNotFound) {
			err = ErrSubmNotFound()
		}
		httpjson.HandleError(log, w, err)
		return
	}
	results, err := h.store.ListResults(r.Context(), id)
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	if results == nil {
		results = []course.EvaluationResult{}
	}
	httpjson.WriteSuccessJson(w, results)
}

func (h *EvalHttpHandler) Health(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteSuccessJson(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
