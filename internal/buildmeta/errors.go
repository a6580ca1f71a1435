// SPDX-License-Identifier: MIT

package buildmeta

import "errors"

var (
	// ErrNotFound is returned when no metadata exists for a build ID.
	ErrNotFound = errors.New("build metadata not found")

	// ErrInvalidTransition is returned by SetStatus when the requested
	// status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid build status transition")

	// ErrPayloadTooLarge is returned when the config options payload
	// exceeds MaxConfigOptionsBytes.
	ErrPayloadTooLarge = errors.New("config options payload too large")

	// ErrInvalidMetadata is returned when an upsert carries an unusable
	// record (missing IDs, invalid enums, negative timeouts).
	ErrInvalidMetadata = errors.New("invalid build metadata")
)
