// Package errors provides the error taxonomy shared by every travel-buddy component.
//
// Errors carry a Kind (how the caller should react) and a Code (which rule was
// violated). Validation errors are raised before any network call, authorization
// errors signal a gap between UI gating and server rules, conflict errors are
// correctable by the user, and transport errors leave the action re-invocable.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindTransport     Kind = "transport"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Code names the specific rule or condition behind an error.
type Code string

const (
	CodeTooSoon            Code = "TOO_SOON"
	CodeIncomplete         Code = "INCOMPLETE"
	CodeInvalidRange       Code = "INVALID_RANGE"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeFull               Code = "FULL"
	CodeAlreadyMember      Code = "ALREADY_MEMBER"
	CodeConflict           Code = "CONFLICT"
	CodeDateOverlap        Code = "DATE_OVERLAP"
	CodeAlreadyCancelled   Code = "ALREADY_CANCELLED"
	CodeTooLate            Code = "TOO_LATE"
	CodeNotAuthorized      Code = "NOT_AUTHORIZED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeSessionExpired     Code = "SESSION_EXPIRED"
	CodeNotEligible        Code = "NOT_ELIGIBLE"
	CodeInvalidRating      Code = "INVALID_RATING"
	CodeAlreadyRemoved     Code = "ALREADY_REMOVED"
	CodeInFlight           Code = "IN_FLIGHT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeReconnectExhausted Code = "RECONNECT_EXHAUSTED"
	CodeInternal           Code = "INTERNAL"
)

var codeKinds = map[Code]Kind{
	CodeTooSoon:            KindValidation,
	CodeIncomplete:         KindValidation,
	CodeInvalidRange:       KindValidation,
	CodeInvalidInput:       KindValidation,
	CodeTooLate:            KindValidation,
	CodeNotEligible:        KindValidation,
	CodeInvalidRating:      KindValidation,
	CodeInFlight:           KindValidation,
	CodeFull:               KindConflict,
	CodeAlreadyMember:      KindConflict,
	CodeConflict:           KindConflict,
	CodeDateOverlap:        KindConflict,
	CodeAlreadyCancelled:   KindConflict,
	CodeAlreadyRemoved:     KindConflict,
	CodeNotAuthorized:      KindAuthorization,
	CodeUnauthenticated:    KindAuthorization,
	CodeSessionExpired:     KindAuthorization,
	CodeNotFound:           KindNotFound,
	CodeUnavailable:        KindTransport,
	CodeReconnectExhausted: KindTransport,
	CodeInternal:           KindInternal,
}

// KindForCode returns the kind a code belongs to.
func KindForCode(code Code) Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindInternal
}

// Error is the structured error returned by travel-buddy components.
type Error struct {
	Kind    Kind        `json:"kind"`
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Fields  FieldErrors `json:"fields,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithMessage returns a copy of the error with a different message.
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithStatus returns a copy of the error carrying the HTTP status that produced it.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

// New creates a new Error for the given code. The kind is derived from the code.
func New(code Code, message string) *Error {
	return &Error{
		Kind:    KindForCode(code),
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Transport wraps a network-level failure. The action stays re-invocable.
func Transport(err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Code:    CodeUnavailable,
		Message: "service unreachable",
		Err:     err,
	}
}

// Sentinel errors, matched with errors.Is by code.
var (
	ErrTooSoon            = New(CodeTooSoon, "trip must start at least 5 days from today")
	ErrIncomplete         = New(CodeIncomplete, "both start and end dates are required")
	ErrInvalidRange       = New(CodeInvalidRange, "end date must not be before start date")
	ErrFull               = New(CodeFull, "trip is full")
	ErrAlreadyMember      = New(CodeAlreadyMember, "already a member of this trip")
	ErrConflict           = New(CodeConflict, "you already have a trip during these dates")
	ErrDateOverlap        = New(CodeDateOverlap, "selected dates overlap an existing trip")
	ErrAlreadyCancelled   = New(CodeAlreadyCancelled, "trip is already cancelled")
	ErrTooLate            = New(CodeTooLate, "trips can only be changed up to 3 days before departure")
	ErrNotAuthorized      = New(CodeNotAuthorized, "not authorized for this trip")
	ErrUnauthenticated    = New(CodeUnauthenticated, "authentication required")
	ErrSessionExpired     = New(CodeSessionExpired, "session expired, please sign in again")
	ErrNotEligible        = New(CodeNotEligible, "reviews can only be submitted for completed trips")
	ErrInvalidRating      = New(CodeInvalidRating, "rating must be between 1 and 5")
	ErrAlreadyRemoved     = New(CodeAlreadyRemoved, "member is no longer part of this trip")
	ErrInFlight           = New(CodeInFlight, "an operation for this trip is already in progress")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrUnavailable        = New(CodeUnavailable, "service unreachable")
	ErrReconnectExhausted = New(CodeReconnectExhausted, "chat connection lost")
)

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Ambiguous reports whether the outcome of a remote call is unknown to the
// client. Local state must be re-fetched rather than patched after such a failure.
func Ambiguous(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return true
	}
	return e.Kind == KindTransport || e.Kind == KindInternal
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a collection of field-level validation errors.
type FieldErrors []FieldError

// Add adds a new validation error for a field.
func (f *FieldErrors) Add(field, message string) {
	*f = append(*f, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (f FieldErrors) HasErrors() bool {
	return len(f) > 0
}

// ToError converts field errors to a validation Error.
func (f FieldErrors) ToError() *Error {
	if len(f) == 0 {
		return New(CodeInvalidInput, "validation failed")
	}

	parts := make([]string, 0, len(f))
	for _, fe := range f {
		parts = append(parts, fe.Field+": "+fe.Message)
	}

	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidInput,
		Message: strings.Join(parts, " - "),
		Fields:  f,
	}
}

// Server message patterns mapped to codes. Checked in order, first match wins.
var messagePatterns = []struct {
	pattern string
	code    Code
}{
	{"not a member", CodeAlreadyRemoved},
	{"already removed", CodeAlreadyRemoved},
	{"already left", CodeAlreadyRemoved},
	{"no longer a member", CodeAlreadyRemoved},
	{"already a member", CodeAlreadyMember},
	{"already joined", CodeAlreadyMember},
	{"already cancelled", CodeAlreadyCancelled},
	{"already been cancelled", CodeAlreadyCancelled},
	{"is full", CodeFull},
	{"trip full", CodeFull},
	{"no spots", CodeFull},
	{"overlap", CodeConflict},
	{"during these dates", CodeConflict},
	{"3 days", CodeTooLate},
	{"too late", CodeTooLate},
	{"5 days", CodeTooSoon},
	{"only the creator", CodeNotAuthorized},
	{"only trip creator", CodeNotAuthorized},
	{"not authorized", CodeNotAuthorized},
	{"permission", CodeNotAuthorized},
	{"completed trips", CodeNotEligible},
	{"rating", CodeInvalidRating},
}

// CodeFromMessage matches a server message against known patterns.
func CodeFromMessage(message string) (Code, bool) {
	lower := strings.ToLower(message)
	for _, p := range messagePatterns {
		if strings.Contains(lower, p.pattern) {
			return p.code, true
		}
	}
	return "", false
}

// FromResponse classifies a non-2xx HTTP response. The body may be
// {"error": "..."}, {"detail": "..."}, {"message": "..."} or a map of field errors.
func FromResponse(status int, body []byte) *Error {
	message, fields := decodeBody(body)
	if message == "" && !fields.HasErrors() {
		message = http.StatusText(status)
	}

	var e *Error
	switch {
	case status == http.StatusUnauthorized:
		e = New(CodeUnauthenticated, message)
	case status >= 500:
		e = New(CodeUnavailable, message)
	case fields.HasErrors() && message == "":
		e = fields.ToError()
	default:
		if code, ok := CodeFromMessage(message); ok {
			e = New(code, message)
			break
		}
		switch status {
		case http.StatusForbidden:
			e = New(CodeNotAuthorized, message)
		case http.StatusNotFound:
			e = New(CodeNotFound, message)
		case http.StatusConflict:
			e = New(CodeConflict, message)
		default:
			e = New(CodeInvalidInput, message)
		}
	}

	e.Status = status
	if fields.HasErrors() {
		e.Fields = fields
	}
	return e
}

func decodeBody(body []byte) (string, FieldErrors) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body)), nil
	}

	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := raw[key].(string); ok && s != "" {
			return s, nil
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields FieldErrors
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			fields.Add(k, v)
		case []any:
			msgs := make([]string, 0, len(v))
			for _, m := range v {
				msgs = append(msgs, fmt.Sprint(m))
			}
			fields.Add(k, strings.Join(msgs, ", "))
		}
	}
	return "", fields
}
