package srvcerror

import "net/http"

type Error struct {
	errorCode  string
	msgToUser  string // public
	dbgInfoErr error  // private, for debugging

	httpStatus int // optional, for HTTP responses
}

func (e *Error) Error() string {
	return e.msgToUser
}

func (e *Error) ErrorCode() string {
	return e.errorCode
}

func (e *Error) DebugInfo() error {
	return e.dbgInfoErr
}

// Unwrap exposes the debug error so errors.Is can see through service errors.
func (e *Error) Unwrap() error {
	return e.dbgInfoErr
}

func (e *Error) SetDebug(err error) *Error {
	e.dbgInfoErr = err
	return e
}

func (e *Error) HttpStatusCode() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) SetHttpStatusCode(code int) *Error {
	e.httpStatus = code
	return e
}

func New(errorCode string, msgToUser string) *Error {
	return &Error{
		errorCode: errorCode,
		msgToUser: msgToUser,
	}
}

const ErrCodeInternalServerError = "internal_server_error"

func ErrInternalSE() *Error {
	return New(
		ErrCodeInternalServerError,
		"internal server error",
	).SetHttpStatusCode(http.StatusInternalServerError)
}

const ErrCodeInvalidJson = "invalid_json"

func ErrInvalidJson() *Error {
	return New(
		ErrCodeInvalidJson,
		"invalid JSON",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeMissingFields = "missing_fields"

func ErrMissingFields(fields string) *Error {
	return New(
		ErrCodeMissingFields,
		"missing fields: "+fields,
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeInvalidSignature = "invalid_signature"

func ErrInvalidSignature() *Error {
	return New(
		ErrCodeInvalidSignature,
		"request signature is missing or invalid",
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeUpstreamFailed = "upstream_failed"

func ErrUpstreamFailed(msg string) *Error {
	return New(
		ErrCodeUpstreamFailed,
		msg,
	).SetHttpStatusCode(http.StatusBadGateway)
}
