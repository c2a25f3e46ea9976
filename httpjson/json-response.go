// Package httpjson writes the JSON envelope shared by the student endpoint and
// the evaluation API, and decodes their request bodies.
package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/programme-lv/pagesforge/srvcerror"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// JsonResponse is the body of every API answer. Data is set on success,
// ErrCode and ErrMsg on failure.
type JsonResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	ErrCode string `json:"code,omitempty"`
	ErrMsg  string `json:"message,omitempty"`
}

func WriteSuccessJson(w http.ResponseWriter, data any) {
	WriteSuccessJsonStatus(w, http.StatusOK, data)
}

// WriteSuccessJsonStatus is WriteSuccessJson with a non-200 status such as 202.
func WriteSuccessJsonStatus(w http.ResponseWriter, statusCode int, data any) {
	writeJson(w, statusCode, JsonResponse{Status: statusSuccess, Data: data})
}

func WriteErrorJson(w http.ResponseWriter, errMsg string, statusCode int, errCode string) {
	writeJson(w, statusCode, JsonResponse{Status: statusError, ErrCode: errCode, ErrMsg: errMsg})
}

func writeJson(w http.ResponseWriter, statusCode int, resp JsonResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	// the status line is already out, a failed encode can only be dropped
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleError answers with err. Service errors keep their code and status.
// An upstream call that ran out of time is a 504. Anything else is a 500
// whose details stay in the log.
func HandleError(log *slog.Logger, w http.ResponseWriter, err error) {
	var srvcErr *srvcerror.Error
	switch {
	case errors.As(err, &srvcErr):
		attrs := []any{slog.String("code", srvcErr.ErrorCode()), slog.Any("error", err)}
		if debug := srvcErr.DebugInfo(); debug != nil {
			attrs = append(attrs, slog.Any("debug", debug))
		}
		if srvcErr.HttpStatusCode() >= http.StatusInternalServerError {
			log.Error("request failed", attrs...)
		} else {
			log.Warn("request rejected", attrs...)
		}
		WriteErrorJson(w, srvcErr.Error(), srvcErr.HttpStatusCode(), srvcErr.ErrorCode())
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("upstream call timed out", slog.Any("error", err))
		WriteErrorJson(w, "upstream call timed out", http.StatusGatewayTimeout, srvcerror.ErrCodeUpstreamFailed)
	default:
		log.Error("internal server error", slog.Any("error", err))
		WriteErrorJson(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError,
			srvcerror.ErrCodeInternalServerError)
	}
}
