// SPDX-License-Identifier: MIT

package buildmeta

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgeci/buildmetad/internal/timeout"
	"github.com/forgeci/buildmetad/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	meta := &Metadata{
		BuildID:           "build-1",
		ProjectID:         "proj-a",
		RunnerID:          "runner-1",
		JobTimeout:        10 * time.Minute,
		Interruptible:     true,
		DebugTraceEnabled: true,
		ConfigOptions:     []byte(`{"script":["make"]}`),
	}
	require.NoError(t, store.UpsertMetadata(ctx, meta))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)

	want := &Metadata{
		BuildID:           "build-1",
		ProjectID:         "proj-a",
		RunnerID:          "runner-1",
		JobTimeout:        10 * time.Minute,
		TimeoutSource:     types.TimeoutSourceUnknown,
		Status:            types.BuildStatusPending,
		Interruptible:     true,
		DebugTraceEnabled: true,
		ConfigOptions:     []byte(`{"script":["make"]}`),
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Metadata{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_UpsertUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))
	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{
		BuildID:    "build-1",
		ProjectID:  "proj-a",
		RunnerID:   "runner-9",
		JobTimeout: time.Minute,
	}))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, "runner-9", got.RunnerID)
	assert.Equal(t, time.Minute, got.JobTimeout)
}

func TestStore_UpsertDoesNotClobberResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))
	require.NoError(t, store.ApplyResolution(ctx, "build-1", timeout.Resolution{
		Value:  time.Hour,
		Source: types.TimeoutSourceRunner,
	}))

	// A later upsert of job options must not reset the resolved timeout.
	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{
		BuildID:    "build-1",
		ProjectID:  "proj-a",
		JobTimeout: 5 * time.Minute,
	}))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.Timeout)
	assert.Equal(t, types.TimeoutSourceRunner, got.TimeoutSource)
	assert.True(t, got.HasResolvedTimeout())
}

func TestStore_UpsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	err := store.UpsertMetadata(ctx, &Metadata{ProjectID: "proj-a"})
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	err = store.UpsertMetadata(ctx, &Metadata{BuildID: "b", ProjectID: "p", JobTimeout: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	err = store.UpsertMetadata(ctx, &Metadata{
		BuildID:       "b",
		ProjectID:     "p",
		ConfigOptions: bytes.Repeat([]byte("x"), MaxConfigOptionsBytes+1),
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestStore_GetMetadataNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetMetadata(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ApplyResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))

	res := timeout.Resolution{Value: 30 * time.Minute, Source: types.TimeoutSourceProject}
	require.NoError(t, store.ApplyResolution(ctx, "build-1", res))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, got.Timeout)
	assert.Equal(t, types.TimeoutSourceProject, got.TimeoutSource)

	// Unknown build
	err = store.ApplyResolution(ctx, "missing", res)
	assert.ErrorIs(t, err, ErrNotFound)

	// Unresolved source is rejected
	err = store.ApplyResolution(ctx, "build-1", timeout.Resolution{Value: time.Minute, Source: types.TimeoutSourceUnknown})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestStore_SetStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))

	require.NoError(t, store.SetStatus(ctx, "build-1", types.BuildStatusRunning))
	require.NoError(t, store.SetStatus(ctx, "build-1", types.BuildStatusCompleted))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, types.BuildStatusCompleted, got.Status)

	// Terminal state blocks further transitions
	err = store.SetStatus(ctx, "build-1", types.BuildStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = store.SetStatus(ctx, "missing", types.BuildStatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetStatusConcurrentTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))

	// Flip the row to a terminal state between the transition check and
	// the write, as a concurrent canceller would. SetStatus reads the
	// clock once on entry, once inside GetMetadata and once right
	// before the UPDATE; inject on the third read.
	calls := 0
	store.now = func() time.Time {
		calls++
		if calls == 3 {
			_, err := store.db.ExecContext(context.Background(),
				`UPDATE build_metadata SET status = 'cancelled' WHERE build_id = 'build-1'`)
			require.NoError(t, err)
		}
		return time.Now()
	}

	err := store.SetStatus(ctx, "build-1", types.BuildStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The terminal state written by the other transition survives.
	store.now = time.Now
	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	assert.Equal(t, types.BuildStatusCancelled, got.Status)
}

func TestStore_SetExitCode(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "build-1", ProjectID: "proj-a"}))
	require.NoError(t, store.SetExitCode(ctx, "build-1", 137))

	got, err := store.GetMetadata(ctx, "build-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 137, *got.ExitCode)

	assert.True(t, errors.Is(store.SetExitCode(ctx, "missing", 0), ErrNotFound))
}

func TestStore_ListByProject(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: id, ProjectID: "proj-a"}))
	}
	require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: "b3", ProjectID: "proj-b"}))

	list, err := store.ListByProject(ctx, "proj-a")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = store.ListByProject(ctx, "proj-c")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, store.UpsertMetadata(ctx, &Metadata{BuildID: id, ProjectID: "p"}))
	}
	require.NoError(t, store.SetStatus(ctx, "b1", types.BuildStatusRunning))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[types.BuildStatusPending])
	assert.Equal(t, 1, stats[types.BuildStatusRunning])
}
