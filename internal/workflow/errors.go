package workflow

import (
	"github.com/pkg/errors"
)

// Kind classifies workflow failures for callers that map them to responses.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindUnavailable
	KindMirror
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindMirror:
		return "mirror"
	default:
		return "unknown"
	}
}

// Error is a classified workflow failure. The package-level values are
// sentinels; compare with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidCourseID = &Error{KindValidation, "INVALID_COURSE_ID", "course id must be a valid UUID"}
	ErrInvalidClassID  = &Error{KindValidation, "INVALID_CLASS_ID", "class id must be a valid UUID"}
	ErrInvalidEmail    = &Error{KindValidation, "INVALID_EMAIL", "user email is not a valid address"}
	ErrInvalidRating   = &Error{KindValidation, "INVALID_RATING", "rating must be between 1 and 5"}
	ErrInvalidStatus   = &Error{KindValidation, "INVALID_STATUS", "status is not a valid course status"}
	ErrStatusMismatch  = &Error{KindValidation, "STATUS_MISMATCH", "status does not match the completed classes"}
	ErrInvalidComment  = &Error{KindValidation, "INVALID_COMMENT", "comment is missing required fields"}

	ErrAlreadyRegistered = &Error{KindConflict, "ALREADY_REGISTERED", "user is already registered to this course"}
	ErrNotRegistered     = &Error{KindConflict, "NOT_REGISTERED", "user is not registered to this course"}

	ErrCourseNotFound   = &Error{KindNotFound, "COURSE_NOT_FOUND", "course not found"}
	ErrClassNotFound    = &Error{KindNotFound, "CLASS_NOT_FOUND", "class not found"}
	ErrProgressNotFound = &Error{KindNotFound, "PROGRESS_NOT_FOUND", "no progress recorded for this course"}

	ErrContentStoreUnavailable  = &Error{KindUnavailable, "CONTENT_STORE_UNAVAILABLE", "content store unavailable"}
	ErrProgressStoreUnavailable = &Error{KindUnavailable, "PROGRESS_STORE_UNAVAILABLE", "progress store unavailable"}

	ErrMirrorFailure = &Error{KindMirror, "MIRROR_FAILURE", "graph mirror write failed"}
)

// storeError ties a sentinel to the underlying cause so errors.Is matches both.
type storeError struct {
	sentinel *Error
	cause    error
}

func (e *storeError) Error() string   { return e.sentinel.Message + ": " + e.cause.Error() }
func (e *storeError) Unwrap() []error { return []error{e.sentinel, e.cause} }

func wrapStore(sentinel *Error, cause error, op string) error {
	return &storeError{sentinel: sentinel, cause: errors.Wrap(cause, op)}
}

// KindOf classifies err. Errors that carry no workflow kind count as
// unavailable; nil has kind zero.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnavailable
}

// AsError returns the workflow sentinel carried by err, if any.
func AsError(err error) (*Error, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
