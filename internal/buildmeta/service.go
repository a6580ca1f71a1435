// SPDX-License-Identifier: MIT

package buildmeta

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeci/buildmetad/internal/log"
	"github.com/forgeci/buildmetad/internal/metrics"
	"github.com/forgeci/buildmetad/internal/timeout"
)

// SettingsProvider supplies the non-job timeout candidates. Zero values
// mean "not configured".
type SettingsProvider interface {
	ProjectDefaultTimeout(ctx context.Context, projectID string) (time.Duration, error)
	RunnerMaxTimeout(ctx context.Context, runnerID string) (time.Duration, error)
}

// Journal records resolution outcomes for audit.
type Journal interface {
	Append(ctx context.Context, buildID string, res timeout.Resolution) error
}

// Service orchestrates timeout resolution: it gathers the candidates
// for a build, resolves them, and persists the winner.
type Service struct {
	store    *Store
	settings SettingsProvider
	journal  Journal
}

// NewService wires a resolution service. journal may be nil, in which
// case outcomes are not recorded for audit.
func NewService(store *Store, settings SettingsProvider, journal Journal) *Service {
	return &Service{store: store, settings: settings, journal: journal}
}

// ResolveTimeout computes and persists the effective timeout for a
// build. runnerID overrides the runner stored on the metadata record
// when non-empty (the coordinator knows the assigned runner at dispatch
// time, which may postdate the upsert).
//
// The boolean result is false when no candidate timeout exists; the
// stored metadata is left untouched in that case.
func (s *Service) ResolveTimeout(ctx context.Context, buildID, runnerID string) (timeout.Resolution, bool, error) {
	logger := log.WithComponentFromContext(ctx, "resolver")

	meta, err := s.store.GetMetadata(ctx, buildID)
	if err != nil {
		metrics.RecordResolutionError("not_found")
		return timeout.Resolution{}, false, err
	}

	if runnerID == "" {
		runnerID = meta.RunnerID
	}

	projectDefault, err := s.settings.ProjectDefaultTimeout(ctx, meta.ProjectID)
	if err != nil {
		metrics.RecordResolutionError("settings")
		return timeout.Resolution{}, false, fmt.Errorf("project settings for %s: %w", meta.ProjectID, err)
	}

	var runnerMax time.Duration
	if runnerID != "" {
		runnerMax, err = s.settings.RunnerMaxTimeout(ctx, runnerID)
		if err != nil {
			metrics.RecordResolutionError("settings")
			return timeout.Resolution{}, false, fmt.Errorf("runner settings for %s: %w", runnerID, err)
		}
	}

	res, ok := timeout.Resolve(meta.JobTimeout, projectDefault, runnerMax)
	if !ok {
		metrics.RecordEmptyResolution()
		logger.Debug().
			Str(log.FieldBuildID, buildID).
			Str(log.FieldEvent, "timeout.no_candidates").
			Msg("no timeout candidates present, leaving metadata untouched")
		return timeout.Resolution{}, false, nil
	}

	if err := s.store.ApplyResolution(ctx, buildID, res); err != nil {
		metrics.RecordResolutionError("store")
		return timeout.Resolution{}, false, fmt.Errorf("apply resolution: %w", err)
	}

	if s.journal != nil {
		jerr := s.journal.Append(ctx, buildID, res)
		metrics.RecordJournalAppend(jerr)
		if jerr != nil {
			// The resolution is already persisted; a journal failure is
			// logged but does not fail the operation.
			logger.Warn().
				Err(jerr).
				Str(log.FieldBuildID, buildID).
				Str(log.FieldEvent, "timeout.journal_failed").
				Msg("failed to journal resolution")
		}
	}

	metrics.RecordResolution(res.Source.String())
	logger.Info().
		Str(log.FieldBuildID, buildID).
		Str(log.FieldRunnerID, runnerID).
		Dur(log.FieldTimeout, res.Value).
		Str(log.FieldTimeoutSource, res.Source.String()).
		Str(log.FieldEvent, "timeout.resolved").
		Msg("effective timeout resolved")

	return res, true, nil
}
