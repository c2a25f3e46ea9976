package evalhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/coursedb"
	"github.com/programme-lv/pagesforge/httpjson"
	"github.com/programme-lv/pagesforge/logger"
	"github.com/programme-lv/pagesforge/reqsign"
	"github.com/programme-lv/pagesforge/srvcerror"
)

type SubmitResponse struct {
	Message  string `json:"message"`
	SubmUUID string `json:"subm_uuid"`
}

func (h *EvalHttpHandler) PostSubmit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var note course.Notification
	if err := httpjson.DecodeRequired(r, &note, course.NotificationFields); err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	claims := reqsign.ClaimsFromContext(r.Context())
	if claims == nil || claims.Subject != note.Email {
		httpjson.HandleError(log, w, ErrSubjectMismatch())
		return
	}

	log = log.With(
		slog.String("email", note.Email),
		slog.String("task", note.Task),
		slog.Int("round", note.Round))
	log.Info("received submission", slog.String("pages_url", note.PagesURL))

	task, err := h.store.MatchTask(r.Context(), coursedb.TaskMatch{
		Email:  note.Email,
		TaskID: note.Task,
		Round:  note.Round,
		Nonce:  note.Nonce,
	})
	if errors.Is(err, coursedb.ErrNotFound) {
		httpjson.HandleError(log, w, ErrTaskNotFound())
		return
	}
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}

	subm, created, err := h.store.UpsertSubmission(r.Context(), course.Submission{
		TaskUUID:  task.UUID,
		Email:     task.Email,
		TaskID:    task.TaskID,
		Round:     task.Round,
		Nonce:     task.Nonce,
		RepoURL:   note.RepoURL,
		CommitSHA: note.CommitSHA,
		PagesURL:  note.PagesURL,
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	h.listCache.Flush()

	if h.trigger != nil {
		// notified is set first so a fast evaluation cannot be overwritten
		if err := h.store.SetSubmStatus(r.Context(), subm.UUID, course.SubmNotified); err != nil {
			httpjson.HandleError(log, w, err)
			return
		}
		if err := h.trigger.Trigger(r.Context(), subm.UUID); err != nil {
			if rerr := h.store.SetSubmStatus(r.Context(), subm.UUID, course.SubmPending); rerr != nil {
				log.Error("failed to reset submission status", slog.Any("error", rerr))
			}
			httpjson.HandleError(log, w, srvcerror.ErrUpstreamFailed("could not schedule evaluation").SetDebug(err))
			return
		}
	}

	msg := "Submission updated"
	if created {
		msg = "Submission received"
	}
	log.Info(strings.ToLower(msg), slog.String("subm_uuid", subm.UUID.String()))
	httpjson.WriteSuccessJson(w, SubmitResponse{Message: msg, SubmUUID: subm.UUID.String()})
}
