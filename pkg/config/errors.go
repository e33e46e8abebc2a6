// Package config parses the weaver's ini-style machine file: sections of
// "key: value" options with access tracking so unknown keys are rejected.
package config

import (
	"fmt"

	"leaflet-weaver/pkg/errors"
)

func where(section, option string) string {
	if option == "" {
		return fmt.Sprintf("section '%s'", section)
	}
	return fmt.Sprintf("option '%s' in section '%s'", option, section)
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *errors.HostError {
	return errors.New(errors.ErrConfigOption, where(section, option)+" must be specified").
		SetSection(section).
		SetOption(option)
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *errors.HostError {
	return errors.ConfigSectionError(section)
}

// ErrInvalidValue returns an error for a value that does not parse.
func ErrInvalidValue(section, option, value, expected string) *errors.HostError {
	return errors.New(errors.ErrConfigType, fmt.Sprintf("%s: invalid value '%s', expected %s", where(section, option), value, expected)).
		SetSection(section).
		SetOption(option)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *errors.HostError {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *errors.HostError {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}

// ErrUnused reports leftover sections or options.
func ErrUnused(detail string) *errors.HostError {
	return errors.New(errors.ErrConfigValidation, detail).SetSection("config")
}
