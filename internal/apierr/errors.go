// Package apierr classifies client failures into kinds that callers match
// with errors.Is and decodes the service's error bodies.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind classifies a failure so callers can decide how to present it.
// A Kind is itself an error, which lets callers match with errors.Is.
type Kind string

const (
	CredentialDecodeFailure Kind = "credential_decode_failure"
	AuthExpired             Kind = "auth_expired"
	AuthUnrecoverable       Kind = "auth_unrecoverable"
	ChallengeRequired       Kind = "challenge_required"
	RateLimited             Kind = "rate_limited"
	ServerFault             Kind = "server_fault"
	ValidationRejected      Kind = "validation_rejected"
	TaskNotFound            Kind = "task_not_found"
	UnresolvedAssignee      Kind = "unresolved_assignee"
	NotFound                Kind = "not_found"
	Forbidden               Kind = "forbidden"
	Transport               Kind = "transport"
	Unknown                 Kind = "unknown"
)

func (k Kind) Error() string { return string(k) }

// Error is the error type returned by every layer of the client.
type Error struct {
	Kind    Kind
	Status  int
	Message string

	// Fields holds field-level validation messages echoed by the backend.
	Fields map[string][]string

	// RetryAfter is the write-availability hint of a rate-limited response.
	RetryAfter time.Duration

	// Question is the challenge question of a ChallengeRequired failure.
	Question string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindForStatus maps an HTTP status to the failure class callers see.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return AuthExpired
	case status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status == http.StatusBadRequest:
		return ValidationRejected
	case status >= 500:
		return ServerFault
	default:
		return Unknown
	}
}

// FromResponse builds an Error from a non-2xx response body. Bodies follow the
// backend's conventions: {"detail": "..."}, {"message": "..."} or a map of
// field name to a list of messages.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Kind: KindForStatus(status), Status: status}

	doc := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !doc.IsObject() {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	for _, key := range messageKeys {
		if v := doc.Get(key); v.Type == gjson.String && v.Str != "" {
			e.Message = v.Str
			break
		}
	}
	e.Question = doc.Get("captcha_question").String()

	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "detail", "message", "error", "captcha_question":
			return true
		}
		if msgs := fieldMessages(value); len(msgs) > 0 {
			if e.Fields == nil {
				e.Fields = make(map[string][]string)
			}
			e.Fields[key.Str] = msgs
		}
		return true
	})

	if e.Message == "" {
		e.Message = summarizeFields(e.Fields)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// messageKeys are checked in order for the top-level message.
var messageKeys = []string{"detail", "message", "error"}

func fieldMessages(value gjson.Result) []string {
	if value.Type == gjson.String && value.Str != "" {
		return []string{value.Str}
	}
	if !value.IsArray() {
		return nil
	}
	var msgs []string
	for _, item := range value.Array() {
		if item.Type == gjson.String {
			msgs = append(msgs, item.Str)
		}
	}
	return msgs
}

func summarizeFields(fields map[string][]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], " ")))
	}
	return strings.Join(parts, "; ")
}

// Message returns the user-facing message of err, falling back to fallback
// when err carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
