// Unified error handling for the weave toolpath engine
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Planning errors
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrIndexOutOfRange      ErrorCode = "INDEX_OUT_OF_RANGE"

	// Configuration file errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Execution errors
	ErrSink      ErrorCode = "SINK"
	ErrCleaning  ErrorCode = "CLEANING"
	ErrScheduler ErrorCode = "SCHEDULER"
	ErrJournal   ErrorCode = "JOURNAL"
	ErrRuntime   ErrorCode = "RUNTIME"
)

// HostError is the unified error type for the weaver
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or component
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Option
	}
	msg := fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// InvalidConfiguration reports a parameter that makes planning impossible.
func InvalidConfiguration(component, format string, args ...interface{}) *HostError {
	return New(ErrInvalidConfiguration, fmt.Sprintf(format, args...)).SetSection(component)
}

// IndexOutOfRange reports a curve index outside [0, n).
func IndexOutOfRange(component string, index, n int) *HostError {
	return New(ErrIndexOutOfRange, fmt.Sprintf("index %d outside [0, %d)", index, n)).
		SetSection(component).
		SetContext("index", index).
		SetContext("len", n)
}

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// SinkError wraps a motion sink failure.
func SinkError(err error, step int) *HostError {
	return Wrap(err, ErrSink, "motion sink rejected primitive").
		SetSection("sink").
		SetContext("step", step)
}

// CleaningError wraps a cleaning routine failure.
func CleaningError(err error, step int) *HostError {
	return Wrap(err, ErrCleaning, "cleaning routine failed").
		SetSection("cleaning").
		SetContext("step", step)
}

// JournalError wraps a journal storage failure.
func JournalError(err error, operation string) *HostError {
	return Wrap(err, ErrJournal, operation).SetSection("journal")
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// Is checks whether any error in err's chain carries the given code.
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	for err != nil {
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// IsInvalidConfiguration checks if err rejects planning parameters
func IsInvalidConfiguration(err error) bool {
	return Is(err, ErrInvalidConfiguration)
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType) ||
		Is(err, ErrInvalidConfiguration)
}

// IsFatal reports whether err must halt a run.
func IsFatal(err error) bool {
	return Is(err, ErrSink) || Is(err, ErrCleaning)
}
