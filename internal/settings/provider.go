// SPDX-License-Identifier: MIT

package settings

import (
	"context"
	"time"

	"github.com/forgeci/buildmetad/internal/config"
	"github.com/forgeci/buildmetad/internal/metrics"
)

// Provider supplies the non-job timeout candidates for resolution.
// A zero duration means "not configured".
type Provider interface {
	ProjectDefaultTimeout(ctx context.Context, projectID string) (time.Duration, error)
	RunnerMaxTimeout(ctx context.Context, runnerID string) (time.Duration, error)
}

// StaticProvider serves settings declared in the daemon configuration.
// Unknown projects and runners resolve to zero without error.
type StaticProvider struct {
	projects map[string]time.Duration
	runners  map[string]time.Duration
}

// NewStaticProvider builds a provider from the configured project and
// runner settings.
func NewStaticProvider(projects []config.ProjectSettings, runners []config.RunnerSettings) *StaticProvider {
	p := &StaticProvider{
		projects: make(map[string]time.Duration, len(projects)),
		runners:  make(map[string]time.Duration, len(runners)),
	}
	for _, proj := range projects {
		p.projects[proj.ID] = proj.DefaultTimeout
	}
	for _, r := range runners {
		p.runners[r.ID] = r.MaxTimeout
	}
	return p
}

// ProjectDefaultTimeout returns the project's configured default timeout.
func (p *StaticProvider) ProjectDefaultTimeout(_ context.Context, projectID string) (time.Duration, error) {
	return p.projects[projectID], nil
}

// RunnerMaxTimeout returns the runner's configured maximum timeout.
func (p *StaticProvider) RunnerMaxTimeout(_ context.Context, runnerID string) (time.Duration, error) {
	return p.runners[runnerID], nil
}

// CachedProvider wraps a Provider with a TTL cache. Lookups that miss
// fall through to the inner provider and the result, configured or not,
// is cached so absent settings don't hammer the backend.
type CachedProvider struct {
	inner Provider
	cache Cache
	ttl   time.Duration
}

// NewCachedProvider wraps inner with the given cache and TTL.
func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl}
}

// ProjectDefaultTimeout returns the cached project default, querying the
// inner provider on a miss.
func (p *CachedProvider) ProjectDefaultTimeout(ctx context.Context, projectID string) (time.Duration, error) {
	return p.lookup(ctx, "project:"+projectID, func() (time.Duration, error) {
		return p.inner.ProjectDefaultTimeout(ctx, projectID)
	})
}

// RunnerMaxTimeout returns the cached runner maximum, querying the
// inner provider on a miss.
func (p *CachedProvider) RunnerMaxTimeout(ctx context.Context, runnerID string) (time.Duration, error) {
	return p.lookup(ctx, "runner:"+runnerID, func() (time.Duration, error) {
		return p.inner.RunnerMaxTimeout(ctx, runnerID)
	})
}

func (p *CachedProvider) lookup(_ context.Context, key string, fetch func() (time.Duration, error)) (time.Duration, error) {
	if d, ok := p.cache.Get(key); ok {
		metrics.RecordSettingsCache("hit")
		return d, nil
	}
	metrics.RecordSettingsCache("miss")

	d, err := fetch()
	if err != nil {
		return 0, err
	}
	p.cache.Set(key, d, p.ttl)
	return d, nil
}

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*CachedProvider)(nil)
)
