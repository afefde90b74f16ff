package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeStateConflict    Code = "STATE_CONFLICT"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeDependency       Code = "DEPENDENCY_ERROR"
	CodeCatalogLookup    Code = "CATALOG_LOOKUP_FAILED"
	CodeNoVariants       Code = "NO_VARIANTS_AVAILABLE"
	CodeProviderRejected Code = "PROVIDER_REJECTED"
)

// Metadata is how a code surfaces over HTTP and to retrying callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
	ownMessage
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
		ExposeMessage:  flags&ownMessage != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:       meta(http.StatusBadRequest, "validation failed", withDetails|ownMessage),
	CodeUnauthorized:     meta(http.StatusUnauthorized, "authentication required", ownMessage),
	CodeNotFound:         meta(http.StatusNotFound, "resource not found", ownMessage),
	CodeConflict:         meta(http.StatusConflict, "conflict detected", ownMessage),
	CodeStateConflict:    meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|ownMessage),
	CodeInternal:         meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:       meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
	CodeCatalogLookup:    meta(http.StatusBadGateway, "catalog lookup failed", withDetails),
	CodeNoVariants:       meta(http.StatusUnprocessableEntity, "no variants available", withDetails|ownMessage),
	CodeProviderRejected: meta(http.StatusBadGateway, "fulfillment provider rejected the request", withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is safe to show to callers only when
// the code allows details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err as the cause. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries code. Untyped errors only match
// CodeInternal.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsRetryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
