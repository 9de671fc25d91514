package config

import (
	"errors"
	"fmt"
	"log/slog"

	slogkit "github.com/moonshotcommons/timelock/slog"
)

// ConfigError is returned when the configuration cannot be loaded or is not valid.
// It carries a message for the operator and the underlying cause.
type ConfigError struct {
	err error
	msg string
}

// NewConfigError returns a new ConfigError.
// The err argument can be an error, a string, or a fmt.Stringer.
func NewConfigError(err any, msg string) *ConfigError {
	var cause error
	switch x := err.(type) {
	case nil:
		// No cause
	case error:
		cause = x
	case string:
		cause = errors.New(x)
	case fmt.Stringer:
		cause = errors.New(x.String())
	default:
		panic(fmt.Sprintf("invalid type for parameter 'err': %T", err))
	}
	return &ConfigError{
		err: cause,
		msg: msg,
	}
}

// Error implements the error interface.
func (e ConfigError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.err.Error() + ": " + e.msg
}

// Unwrap returns the cause of the error.
func (e ConfigError) Unwrap() error {
	return e.err
}

// LogFatal logs the error and terminates the process.
func (e ConfigError) LogFatal(log *slog.Logger) {
	cause := e.err
	if cause == nil {
		cause = errors.New(e.msg)
	}
	slogkit.FatalError(log, e.msg, cause)
}
