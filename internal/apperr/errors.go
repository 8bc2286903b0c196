// Package apperr defines the typed error taxonomy shared by the ingestion,
// retrieval and structured-query subsystems. Capability failures are
// translated into an *Error at the component boundary that observed them.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindDuplicateContent Kind = "duplicate_content"
	KindExtraction       Kind = "extraction"
	KindEmbedding        Kind = "embedding"
	KindIndexWrite       Kind = "index_write"
	KindExternalTimeout  Kind = "external_timeout"
	KindExternalService  Kind = "external_service"
	KindInternal         Kind = "internal"
)

// Stable machine-readable codes.
const (
	CodeMissingCompoundID = "MISSING_COMPOUND_ID"
	CodeInvalidScope      = "INVALID_SCOPE"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeDuplicateDocument = "DUPLICATE_DOCUMENT"
	CodeUnknownTable      = "UNKNOWN_TABLE"
	CodeUnknownColumn     = "UNKNOWN_COLUMN"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeCrossCompound     = "CROSS_COMPOUND"
	CodeNotFound          = "NOT_FOUND"
	CodeIndexingActive    = "INDEXING_ACTIVE"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeEmbeddingFailed   = "EMBEDDING_FAILED"
	CodeIndexWriteFailed  = "INDEX_WRITE_FAILED"
	CodeTimeout           = "EXTERNAL_TIMEOUT"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is the single error type surfaced across package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when set on the target, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetail returns e with an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newErr(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// New builds an error of any kind.
func New(kind Kind, code, format string, args ...any) *Error {
	return newErr(kind, code, format, args...)
}

func Validation(code, format string, args ...any) *Error {
	return newErr(KindValidation, code, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newErr(KindNotFound, CodeNotFound, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newErr(KindConflict, code, format, args...)
}

// Duplicate reports that content with the same fingerprint already exists.
func Duplicate(existingID string) *Error {
	return newErr(KindDuplicateContent, CodeDuplicateDocument,
		"a document with identical content already exists in this compound").
		WithDetail("document_id", existingID)
}

// Wrap attaches kind and code to an underlying error. A nil err yields nil.
func Wrap(err error, kind Kind, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// FromExternal translates a capability failure, mapping deadline and
// cancellation to KindExternalTimeout and everything else to fallback.
func FromExternal(err error, fallback Kind, code, message string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, KindExternalTimeout, CodeTimeout, message)
	}
	return Wrap(err, fallback, code, message)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// IsUserError reports whether err was caused by caller input rather than
// by the system failing to complete the request.
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindDuplicateContent:
		return true
	}
	return false
}
