package server

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed operation. Transports map kinds to their own
// status codes.
type ErrorKind string

const (
	// KindRequest is an unusable request: bad JSON, a non-object manifest,
	// malformed criteria.
	KindRequest ErrorKind = "request"
	// KindReference is an unknown or mismatched format id.
	KindReference ErrorKind = "reference"
	// KindValidation carries itemized manifest validation errors.
	KindValidation ErrorKind = "validation"
	// KindCollaborator is a failure of storage or generation.
	KindCollaborator ErrorKind = "collaborator"
	KindInternal     ErrorKind = "internal"
)

const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidJSON           = "INVALID_JSON"
	CodeInvalidManifest       = "INVALID_MANIFEST"
	CodeInvalidCriteria       = "INVALID_CRITERIA"
	CodeInvalidOutputMode     = "INVALID_OUTPUT_MODE"
	CodeAPIKeyRequired        = "API_KEY_REQUIRED"
	CodeFormatNotFound        = "FORMAT_NOT_FOUND"
	CodeFormatIDMismatch      = "FORMAT_ID_MISMATCH"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeUploadFailed          = "UPLOAD_FAILED"
	CodeGenerationFailed      = "GENERATION_FAILED"
	CodeGenerationParseFailed = "GENERATION_PARSE_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is the typed failure of a server operation.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadFailure itemizes one preview that could not be stored.
type UploadFailure struct {
	Variant string `json:"variant"`
	Key     string `json:"key"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AsError returns err as an *Error, wrapping anything else as internal.
func AsError(err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: Truncate(err.Error(), 500)}
}

// Truncate keeps the last n bytes of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func requestError(code, format string, args ...any) *Error {
	return &Error{Kind: KindRequest, Code: code, Message: fmt.Sprintf(format, args...)}
}
