package evalhttp

import (
	"net/http"

	"github.com/programme-lv/pagesforge/srvcerror"
)

const ErrCodeTaskNotFound = "task_not_found"

func ErrTaskNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeTaskNotFound,
		"no task matches email, task, round and nonce",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeSubjectMismatch = "subject_mismatch"

func ErrSubjectMismatch() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSubjectMismatch,
		"token subject does not match the submission email",
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeSubmNotFound = "submission_not_found"

func ErrSubmNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSubmNotFound,
		"submission not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeInvalidQuery = "invalid_query"

func ErrInvalidQuery(msg string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidQuery,
		msg,
	).SetHttpStatusCode(http.StatusBadRequest)
}
