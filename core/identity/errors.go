package identity

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies backend failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredentials
	KindAlreadyRegistered
	KindRateLimited
	KindPolicyDenied
	KindNetwork
	KindNotFound
)

var kindNames = map[ErrorKind]string{
	KindUnknown:            "unknown",
	KindInvalidCredentials: "invalid_credentials",
	KindAlreadyRegistered:  "already_registered",
	KindRateLimited:        "rate_limited",
	KindPolicyDenied:       "policy_denied",
	KindNetwork:            "network",
	KindNotFound:           "not_found",
}

func (k ErrorKind) String() string { return kindNames[k] }

// AuthError is a classified backend failure.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewAuthError classifies msg; kind, when given, overrides the classification.
func NewAuthError(msg string, err error, kind ...ErrorKind) *AuthError {
	k := ClassifyMessage(msg)
	if len(kind) > 0 {
		k = kind[0]
	}
	return &AuthError{Kind: k, Message: msg, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first AuthError found in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var aErr *AuthError
	if errors.As(err, &aErr) {
		return aErr.Kind
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return KindInvalidCredentials
	}
	if errors.Is(err, ErrAccountNotFound) {
		return KindNotFound
	}
	return ClassifyMessage(err.Error())
}

func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// ClassifyMessage maps a backend error message to an ErrorKind.
func ClassifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return KindUnknown
	case containsAny(m, "already registered", "already been registered", "already exists", "duplicate"):
		return KindAlreadyRegistered
	case containsAny(m, "rate limit", "too many", "429"):
		return KindRateLimited
	case containsAny(m, "invalid login credentials", "invalid credentials"):
		return KindInvalidCredentials
	case containsAny(m, "not allowed", "not authorized", "unauthorized", "forbidden", "permission", "row-level security", "policy"):
		return KindPolicyDenied
	case containsAny(m, "user not found", "account not found"):
		return KindNotFound
	case containsAny(m, "connection refused", "no such host", "timeout", "network"):
		return KindNetwork
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
