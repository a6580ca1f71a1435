// SPDX-License-Identifier: MIT

// Package timeout resolves the effective execution timeout for a build
// from competing configuration sources.
//
// Three layers can supply a timeout: a job-level option, the project's
// default build timeout, and the runner's maximum timeout. A job-level
// option always replaces the project default as the non-runner candidate,
// and the shortest present candidate wins overall, so a runner-imposed
// cap is never exceeded even when a job or project asks for more.
package timeout

import (
	"time"

	"github.com/forgeci/buildmetad/internal/types"
)

// Candidate is one potential timeout value together with the layer it
// came from. The zero Candidate represents an absent value.
type Candidate struct {
	Value  time.Duration
	Source types.TimeoutSource
}

// Present reports whether the candidate carries a usable value.
func (c Candidate) Present() bool {
	return c.Value > 0
}

// Resolution is the outcome of a successful resolve: the effective
// timeout and the layer that determined it.
type Resolution struct {
	Value  time.Duration
	Source types.TimeoutSource
}

// Resolve computes the effective timeout from up to three candidate
// sources. Zero or negative inputs are treated as unset.
//
// The job-level timeout, when set, replaces the project default as the
// non-runner candidate regardless of which is smaller. Among the
// present candidates the minimum value wins; a tie goes to the
// job-or-project candidate. The second return value is false when no
// candidate is present, in which case callers must leave any previously
// stored timeout state untouched.
func Resolve(job, project, runnerMax time.Duration) (Resolution, bool) {
	jobOrProject := jobOrProjectCandidate(job, project)
	runner := Candidate{}
	if runnerMax > 0 {
		runner = Candidate{Value: runnerMax, Source: types.TimeoutSourceRunner}
	}

	switch {
	case !jobOrProject.Present() && !runner.Present():
		return Resolution{}, false
	case !runner.Present():
		return Resolution{Value: jobOrProject.Value, Source: jobOrProject.Source}, true
	case !jobOrProject.Present():
		return Resolution{Value: runner.Value, Source: runner.Source}, true
	}

	// Both present: shortest wins, job-or-project on a tie.
	if jobOrProject.Value <= runner.Value {
		return Resolution{Value: jobOrProject.Value, Source: jobOrProject.Source}, true
	}
	return Resolution{Value: runner.Value, Source: runner.Source}, true
}

// jobOrProjectCandidate selects the non-runner candidate: the job-level
// option if set, otherwise the project default.
func jobOrProjectCandidate(job, project time.Duration) Candidate {
	if job > 0 {
		return Candidate{Value: job, Source: types.TimeoutSourceJob}
	}
	if project > 0 {
		return Candidate{Value: project, Source: types.TimeoutSourceProject}
	}
	return Candidate{}
}
