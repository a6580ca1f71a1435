// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// BuildStatus represents the current state of a CI build.
//
// BuildStatus provides type safety for build state management, preventing
// string-based typos and enabling exhaustive switch statements.
type BuildStatus string

// Build status constants define all possible states of a build.
const (
	// BuildStatusPending indicates the build is queued but not yet started.
	BuildStatusPending BuildStatus = "pending"

	// BuildStatusRunning indicates the build is currently executing.
	BuildStatusRunning BuildStatus = "running"

	// BuildStatusCompleted indicates the build finished successfully.
	BuildStatusCompleted BuildStatus = "completed"

	// BuildStatusFailed indicates the build encountered an error and terminated.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was manually cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// String returns the string representation of the build status.
// Implements the fmt.Stringer interface for better logging and debugging.
func (s BuildStatus) String() string {
	return string(s)
}

// IsValid checks whether the build status is one of the defined constants.
func (s BuildStatus) IsValid() bool {
	switch s {
	case BuildStatusPending, BuildStatusRunning, BuildStatusCompleted, BuildStatusFailed, BuildStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the build status represents a final state.
//
// Terminal states include: Completed, Failed, Cancelled.
// A build in a terminal state will not transition to another state.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case BuildStatusCompleted, BuildStatusFailed, BuildStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this status can transition to the target status.
//
// Valid transitions:
//   - Pending → Running, Cancelled
//   - Running → Completed, Failed, Cancelled
//   - Terminal states cannot transition
func (s BuildStatus) CanTransitionTo(target BuildStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case BuildStatusPending:
		return target == BuildStatusRunning || target == BuildStatusCancelled
	case BuildStatusRunning:
		return target == BuildStatusCompleted || target == BuildStatusFailed || target == BuildStatusCancelled
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for BuildStatus.
func (s BuildStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for BuildStatus.
func (s *BuildStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := BuildStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid build status: %q", str)
	}

	*s = status
	return nil
}

// ParseBuildStatus parses a string into a BuildStatus, returning an error if invalid.
func ParseBuildStatus(s string) (BuildStatus, error) {
	status := BuildStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid build status: %q (valid: pending, running, completed, failed, cancelled)", s)
	}
	return status, nil
}

// AllBuildStatuses returns all defined build statuses.
func AllBuildStatuses() []BuildStatus {
	return []BuildStatus{
		BuildStatusPending,
		BuildStatusRunning,
		BuildStatusCompleted,
		BuildStatusFailed,
		BuildStatusCancelled,
	}
}
