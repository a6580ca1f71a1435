// SPDX-License-Identifier: MIT

// Package types provides type-safe enumerations and constants for buildmetad.
//
// This package centralizes all typed constants, enums, and state types
// to prevent string-based bugs and improve code maintainability.
package types

import (
	"encoding/json"
	"fmt"
)

// TimeoutSource identifies which configuration layer produced the effective
// timeout for a build.
type TimeoutSource string

// Timeout source constants cover every layer that can supply a timeout.
const (
	// TimeoutSourceProject indicates the project's default build timeout was used.
	TimeoutSourceProject TimeoutSource = "project"

	// TimeoutSourceRunner indicates the runner's maximum timeout capped the build.
	TimeoutSourceRunner TimeoutSource = "runner"

	// TimeoutSourceJob indicates a job-level timeout option was used.
	TimeoutSourceJob TimeoutSource = "job"

	// TimeoutSourceUnknown indicates no timeout has been resolved for the build.
	TimeoutSourceUnknown TimeoutSource = "unknown"
)

// String returns the string representation of the timeout source.
// Implements the fmt.Stringer interface for better logging and debugging.
func (s TimeoutSource) String() string {
	return string(s)
}

// IsValid checks whether the timeout source is one of the defined constants.
func (s TimeoutSource) IsValid() bool {
	switch s {
	case TimeoutSourceProject, TimeoutSourceRunner, TimeoutSourceJob, TimeoutSourceUnknown:
		return true
	default:
		return false
	}
}

// IsResolved reports whether the source represents an actual resolution,
// as opposed to TimeoutSourceUnknown.
func (s TimeoutSource) IsResolved() bool {
	switch s {
	case TimeoutSourceProject, TimeoutSourceRunner, TimeoutSourceJob:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for TimeoutSource.
func (s TimeoutSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for TimeoutSource.
func (s *TimeoutSource) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	source := TimeoutSource(str)
	if !source.IsValid() {
		return fmt.Errorf("invalid timeout source: %q", str)
	}

	*s = source
	return nil
}

// ParseTimeoutSource parses a string into a TimeoutSource, returning an error if invalid.
func ParseTimeoutSource(s string) (TimeoutSource, error) {
	source := TimeoutSource(s)
	if !source.IsValid() {
		return "", fmt.Errorf("invalid timeout source: %q (valid: project, runner, job, unknown)", s)
	}
	return source, nil
}

// AllTimeoutSources returns all defined timeout sources.
func AllTimeoutSources() []TimeoutSource {
	return []TimeoutSource{
		TimeoutSourceProject,
		TimeoutSourceRunner,
		TimeoutSourceJob,
		TimeoutSourceUnknown,
	}
}
