package authapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies failures of the auth API the way callers need to react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindNetwork
	KindTokenInvalid
	KindServer
	KindValidation
	KindRateLimited
	KindMalformedResponse
	KindNotAuthenticated
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindInvalidCredentials: "invalid-credentials",
	KindAccountLocked:      "account-locked",
	KindNetwork:            "network",
	KindTokenInvalid:       "token-invalid",
	KindServer:             "server",
	KindValidation:         "validation",
	KindRateLimited:        "rate-limited",
	KindMalformedResponse:  "malformed-response",
	KindNotAuthenticated:   "not-authenticated",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// UserMessage is the text a login form or banner shows for this kind of failure.
func (k Kind) UserMessage() string {
	switch k {
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindAccountLocked:
		return "Your account is locked. Try again later or contact your administrator."
	case KindNetwork:
		return "The portal could not be reached. Check your connection and try again."
	case KindTokenInvalid:
		return "Your session is no longer valid. Please sign in again."
	case KindValidation:
		return "Please correct the highlighted fields."
	case KindRateLimited:
		return "Too many attempts. Please wait a moment and try again."
	case KindNotAuthenticated:
		return "Please sign in to continue."
	default:
		return "Something went wrong. Please try again later."
	}
}

// Error is the structured failure every session and client operation returns.
type Error struct {
	Kind    Kind
	Status  int               // HTTP status, 0 when no response was received
	Code    string            // error code from the response body
	Message string            // error_description from the response body
	Fields  map[string]string // field level validation messages
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d", e.Status)
		if e.Code != "" {
			fmt.Fprintf(&b, " %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+e.Fields[name])
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindNetwork}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Status == 0 && t.Code == ""
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether retrying later may succeed without user action.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// FieldsOf returns the validation messages of err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
