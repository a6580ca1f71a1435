// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldBuildID   = "build_id"
	FieldProjectID = "project_id"
	FieldRunnerID  = "runner_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Resolution fields
	FieldTimeout       = "timeout"
	FieldTimeoutSource = "timeout_source"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Path fields
	FieldPath = "path"
)
