package studenthttp

import (
	"net/http"

	"github.com/programme-lv/pagesforge/srvcerror"
)

const ErrCodeBuildInProgress = "build_in_progress"

func ErrBuildInProgress() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeBuildInProgress,
		"a build for this nonce is already running",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeBuildNotFound = "build_not_found"

func ErrBuildNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeBuildNotFound,
		"no build is known for this nonce",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeNotResumable = "not_resumable"

func ErrNotResumable() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeNotResumable,
		"build did not reach the deploy stage, post the task again",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeWrongRecipient = "wrong_recipient"

func ErrWrongRecipient() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeWrongRecipient,
		"task is addressed to another participant",
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeNonceMismatch = "nonce_mismatch"

func ErrNonceMismatch() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeNonceMismatch,
		"signed nonce does not match the payload",
	).SetHttpStatusCode(http.StatusForbidden)
}
