package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/nysa-project/nysa/internal/shared"
)

// ErrorKind is the closed set of failures surfaced to members.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindEmailUnconfirmed   ErrorKind = "email_unconfirmed"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNetwork            ErrorKind = "network"
	KindUnknown            ErrorKind = "unknown"
)

var (
	// ErrValidation matches every validation failure.
	ErrValidation = shared.ErrValidation
	// ErrNoSession is returned when an operation needs a signed-in member.
	ErrNoSession = errors.New("identity: no active session")
)

// Error is a classified auth failure carrying the message shown to the member.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("identity: %s: %s", e.Kind, e.Raw)
	}
	return fmt.Sprintf("identity: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrValidation) match validation failures.
func (e *Error) Is(target error) bool {
	return target == ErrValidation && e.Kind == KindValidation
}

// FieldErrors exposes the failing field for JSON problem responses.
func (e *Error) FieldErrors() map[string]string {
	if e.Field == "" {
		return nil
	}
	return map[string]string{e.Field: e.Message}
}

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// ProviderError is a non-2xx answer from the identity provider.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: status %d: %s", e.Status, e.Message)
}

const (
	msgGeneric     = "An unexpected error occurred. Please try again."
	msgNetwork     = "Network error. Please check your connection and try again."
	msgRateLimited = "Too many attempts. Please wait a moment before trying again."
)

type knownMessage struct {
	kind    ErrorKind
	message string
}

// knownMessages is keyed on the provider's raw message text.
var knownMessages = map[string]knownMessage{
	"Invalid login credentials":                {KindInvalidCredentials, "Invalid email or password. Please check your credentials and try again."},
	"Email not confirmed":                      {KindEmailUnconfirmed, "Please check your email and click the confirmation link before signing in."},
	"Password should be at least 6 characters": {KindValidation, "Password must be at least 6 characters long."},
	"User not found":                           {KindInvalidCredentials, "No account found with this email address."},
	"Signup not allowed for this instance":     {KindUnknown, "Account creation is currently disabled."},
	"Email rate limit exceeded":                {KindRateLimited, "Too many requests. Please wait a moment before trying again."},
	"Password reset email rate limit exceeded": {KindRateLimited, "Too many password reset attempts. Please wait before trying again."},
	"User already registered":                  {KindUnknown, "An account with this email already exists. Try signing in instead."},
	"Token has expired or is invalid":          {KindInvalidCredentials, "This link has expired or was already used. Please request a new one."},
}

// Classify maps any error returned by a Provider to an *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return classifyProvider(perr)
	}

	if isNetworkError(err) {
		return &Error{Kind: KindNetwork, Message: msgNetwork, Raw: err.Error(), Err: err}
	}
	return &Error{Kind: KindUnknown, Message: msgGeneric, Raw: err.Error(), Err: err}
}

func classifyProvider(perr *ProviderError) *Error {
	raw := strings.TrimSpace(perr.Message)
	if known, ok := knownMessages[raw]; ok {
		return &Error{Kind: known.kind, Message: known.message, Raw: raw, Err: perr}
	}
	if perr.Status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(raw), "rate limit") {
		return &Error{Kind: KindRateLimited, Message: msgRateLimited, Raw: raw, Err: perr}
	}
	if strings.Contains(strings.ToLower(raw), "fetch") {
		return &Error{Kind: KindNetwork, Message: msgNetwork, Raw: raw, Err: perr}
	}
	if raw == "" {
		return &Error{Kind: KindUnknown, Message: msgGeneric, Err: perr}
	}
	return &Error{Kind: KindUnknown, Message: raw, Raw: raw, Err: perr}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Message returns the member-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoSession) {
		return "Your session has ended. Please sign in again."
	}
	return Classify(err).Message
}
