package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so consumers can branch on it without string
// matching. Every rejected request carries exactly one Kind.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindGatewayTimeout Kind = "gateway_timeout"
	KindTransport      Kind = "transport"
	KindUnknown        Kind = "unknown"
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: code, Err: err}
}

// From normalizes any error into an *Error. Errors that already carry a Kind
// pass through untouched, everything else falls back to KindUnknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindUnknown, Code: "unknown", Msg: err.Error(), Err: err}
}

// FromStatus maps a backend HTTP status to an Error. The body message is kept
// so UserMessage can fall back to it for unmapped codes.
func FromStatus(status int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Code: "auth_failed", Msg: msg}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Code: "not_found", Msg: msg}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Code: "rate_limited", Msg: msg}
	case status == http.StatusGatewayTimeout:
		return &Error{Kind: KindGatewayTimeout, Code: "gateway_timeout", Msg: msg}
	case status == http.StatusBadRequest:
		return &Error{Kind: KindValidation, Code: "bad_request", Msg: msg}
	case status >= 500:
		return &Error{Kind: KindTransport, Code: "server_error", Msg: msg}
	default:
		return &Error{Kind: KindUnknown, Code: "unknown", Msg: msg}
	}
}

// Fixed code to human readable message table. Unmapped codes fall back to the
// raw message, or a generic retry prompt when there is none.
var userMessages = map[string]string{
	"auth_failed":     "Your session has expired, please log in again.",
	"not_found":       "We could not find what you were looking for.",
	"rate_limited":    "You are doing that too often, slow down a little.",
	"gateway_timeout": "The payment provider is taking too long, check your history in a moment.",
	"bad_request":     "That request was not valid, double check the values.",
	"server_error":    "Something went wrong on our side, please try again.",
	"bad_amount":      "The amount entered is not valid.",
	"bad_phone":       "The phone number entered is not valid.",
	"bad_side":        "Pick heads or tails before placing a bet.",
	"no_session":      "You need to log in before doing that.",
}

func UserMessage(e *Error) string {
	if e == nil {
		return ""
	}
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "Something went wrong, please try again."
}
