package domain

import (
	"errors"
	"fmt"
)

// Rejection reasons. Operations on the reconciliation service never panic;
// they return a *Rejection that matches one of these with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrCommentRequired    = errors.New("comment is required")
	ErrFieldLocked        = errors.New("field is locked")
	ErrEmptyObservedValue = errors.New("observed value is empty")
	ErrInvalidTransition  = errors.New("transition not allowed")
	ErrFinalized          = errors.New("investigation is finalized")
	ErrBlockedFields      = errors.New("investigation has blocked fields")
	ErrGeolocationInvalid = errors.New("geolocation is not valid")
	ErrInvalidValue       = errors.New("invalid value")
)

// Rejection reports why an operation was not applied
type Rejection struct {
	Op      string
	Reasons []error
	Msg     string
}

func (r *Rejection) Error() string {
	if r.Msg == "" {
		return fmt.Sprintf("%s: %v", r.Op, errors.Join(r.Reasons...))
	}
	return fmt.Sprintf("%s: %s", r.Op, r.Msg)
}

// Is matches any of the rejection reasons
func (r *Rejection) Is(target error) bool {
	for _, reason := range r.Reasons {
		if errors.Is(reason, target) {
			return true
		}
	}
	return false
}

// Codes returns stable machine readable codes for the reasons
func (r *Rejection) Codes() []string {
	codes := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, ReasonCode(reason))
	}
	return codes
}

// Reject builds a rejection for op
func Reject(op string, reason error, format string, args ...interface{}) *Rejection {
	return &Rejection{Op: op, Reasons: []error{reason}, Msg: fmt.Sprintf(format, args...)}
}

// ReasonCode maps a sentinel to a code suitable for API responses
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrCommentRequired):
		return "COMMENT_REQUIRED"
	case errors.Is(err, ErrFieldLocked):
		return "FIELD_LOCKED"
	case errors.Is(err, ErrEmptyObservedValue):
		return "EMPTY_OBSERVED_VALUE"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrFinalized):
		return "FINALIZED"
	case errors.Is(err, ErrBlockedFields):
		return "BLOCKED_FIELDS"
	case errors.Is(err, ErrGeolocationInvalid):
		return "GEOLOCATION_INVALID"
	case errors.Is(err, ErrInvalidValue):
		return "INVALID_VALUE"
	}
	return "UNKNOWN"
}
