package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ConfigurationError reports a setting an operation needs but which is not set.
// Operations depending on it are never attempted.
type ConfigurationError struct {
	Setting string
	Service string
}

func NewConfigurationError(setting, service string) error {
	return &ConfigurationError{Setting: setting, Service: service}
}

func (err ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured (set %s)", err.Service, err.Setting)
}

func IsConfiguration(err error) bool {
	var cErr *ConfigurationError
	return errors.As(err, &cErr)
}

// ConnectivityError reports that an external service could not be reached at all,
// as opposed to the service answering with an error.
type ConnectivityError struct {
	Service string
	Err     error
}

func NewConnectivityError(service string, err error) error {
	return &ConnectivityError{Service: service, Err: err}
}

func (err ConnectivityError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", err.Service, err.Err)
}

func (err ConnectivityError) Unwrap() error { return err.Err }

func IsConnectivity(err error) bool {
	var cErr *ConnectivityError
	return errors.As(err, &cErr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// UpstreamError is an error response of an external service.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func NewUpstreamError(service string, status int, body string) error {
	return &UpstreamError{Service: service, Status: status, Body: body}
}

func (err UpstreamError) Error() string {
	body := err.Body
	if body == "" {
		body = "unknown error"
	}
	return fmt.Sprintf("%s error (%d): %s", err.Service, err.Status, body)
}

func IsUpstream(err error) bool {
	var uErr *UpstreamError
	return errors.As(err, &uErr)
}
