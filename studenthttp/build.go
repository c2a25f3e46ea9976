package studenthttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/pagesforge/buildpipe"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/httpjson"
	"github.com/programme-lv/pagesforge/logger"
	"github.com/programme-lv/pagesforge/reqsign"
)

type BuildView struct {
	Message  string                  `json:"message,omitempty"`
	Nonce    string                  `json:"nonce"`
	State    buildpipe.State         `json:"state,omitempty"`
	Stages   []buildpipe.StageResult `json:"stages,omitempty"`
	RepoURL  string                  `json:"repo_url,omitempty"`
	PagesURL string                  `json:"pages_url,omitempty"`
}

func viewOf(p *buildpipe.Progress, msg string) BuildView {
	v := BuildView{
		Message: msg,
		Nonce:   p.Nonce,
		State:   p.State,
		Stages:  p.Stages,
	}
	if p.Deployment != nil {
		v.RepoURL = p.Deployment.RepoURL
		v.PagesURL = p.Deployment.PagesURL
	}
	return v
}

func (h *StudentHttpHandler) PostBuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var task course.Payload
	if err := httpjson.DecodeRequired(r, &task, course.PayloadFields); err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	if h.owner != "" && !strings.EqualFold(task.Email, h.owner) {
		httpjson.HandleError(log, w, ErrWrongRecipient())
		return
	}
	if claims := reqsign.ClaimsFromContext(r.Context()); claims != nil && claims.Nonce != "" && claims.Nonce != task.Nonce {
		httpjson.HandleError(log, w, ErrNonceMismatch())
		return
	}

	brief := task.Brief
	if len(brief) > 100 {
		brief = brief[:100] + "..."
	}
	log.Info("received build request",
		slog.String("email", task.Email),
		slog.String("task", task.Task),
		slog.Int("round", task.Round),
		slog.String("brief", brief))

	if h.async {
		// detach from the request but keep its logger
		ctx := context.WithoutCancel(r.Context())
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := h.builder.Run(ctx, task); err != nil {
				logger.FromContext(ctx).Error("background build failed", slog.Any("error", err))
			}
		}()
		httpjson.WriteSuccessJsonStatus(w, http.StatusAccepted, BuildView{
			Message: "Request accepted and processing",
			Nonce:   task.Nonce,
			State:   buildpipe.StateRunning,
		})
		return
	}

	progress, err := h.builder.Run(r.Context(), task)
	if err != nil {
		httpjson.HandleError(log, w, mapBuildErr(err))
		return
	}
	httpjson.WriteSuccessJson(w, viewOf(progress, "Build completed"))
}

func (h *StudentHttpHandler) ResumeBuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	nonce := chi.URLParam(r, "nonce")
	if claims := reqsign.ClaimsFromContext(r.Context()); claims != nil && claims.Nonce != "" && claims.Nonce != nonce {
		httpjson.HandleError(log, w, ErrNonceMismatch())
		return
	}

	progress, err := h.builder.Resume(r.Context(), nonce)
	if err != nil {
		httpjson.HandleError(log, w, mapBuildErr(err))
		return
	}
	httpjson.WriteSuccessJson(w, viewOf(progress, "Build completed"))
}

func (h *StudentHttpHandler) GetBuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	progress, err := h.builder.Progress(r.Context(), chi.URLParam(r, "nonce"))
	if err != nil {
		httpjson.HandleError(log, w, mapBuildErr(err))
		return
	}
	httpjson.WriteSuccessJson(w, viewOf(progress, ""))
}

func (h *StudentHttpHandler) Health(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteSuccessJson(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
