// SPDX-License-Identifier: MIT

// Package buildmeta stores per-build metadata and applies timeout
// resolutions to it.
package buildmeta

import (
	"time"

	"github.com/forgeci/buildmetad/internal/types"
)

// MaxConfigOptionsBytes caps the serialized job config options accepted
// on upsert. Oversized payloads are rejected with ErrPayloadTooLarge.
const MaxConfigOptionsBytes = 64 * 1024

// Metadata is the persisted metadata record for a single build.
type Metadata struct {
	BuildID   string `json:"build_id"`
	ProjectID string `json:"project_id"`
	RunnerID  string `json:"runner_id,omitempty"`

	// Timeout is the resolved effective timeout, written only by a
	// successful resolution. Zero means no resolution has happened yet.
	Timeout       time.Duration       `json:"timeout,omitempty"`
	TimeoutSource types.TimeoutSource `json:"timeout_source"`

	// JobTimeout is the job-level timeout option, if the job declared one.
	JobTimeout time.Duration `json:"job_timeout,omitempty"`

	Status            types.BuildStatus `json:"status"`
	Interruptible     bool              `json:"interruptible"`
	DebugTraceEnabled bool              `json:"debug_trace_enabled"`
	CancelGracefully  bool              `json:"cancel_gracefully"`
	ExitCode          *int              `json:"exit_code,omitempty"`

	// ConfigOptions carries the job's raw configuration options as JSON.
	ConfigOptions []byte `json:"config_options,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasResolvedTimeout reports whether a resolution has been applied.
func (m *Metadata) HasResolvedTimeout() bool {
	return m.Timeout > 0 && m.TimeoutSource.IsResolved()
}
