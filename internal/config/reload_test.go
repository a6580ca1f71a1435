// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9090"`), 0o600))

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	t.Cleanup(holder.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, holder.StartWatcher(ctx))

	reloaded := make(chan AppConfig, 1)
	holder.RegisterListener(reloaded)

	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9091"`), 0o600))

	// The watcher debounces writes, so allow some slack.
	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9091", cfg.ListenAddr)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	assert.Equal(t, ":9091", holder.Get().ListenAddr)
}

func TestHolder_WatcherNoopWithoutConfigPath(t *testing.T) {
	holder := NewHolder(Defaults(), NewLoader("", "test"), "")
	t.Cleanup(holder.Stop)

	require.NoError(t, holder.StartWatcher(context.Background()))
}

func TestHolder_RegisterListenerNonBlocking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9090"`), 0o600))

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)

	// An unbuffered channel nobody reads must not block a reload.
	blocked := make(chan AppConfig)
	holder.RegisterListener(blocked)

	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9091"`), 0o600))
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, ":9091", holder.Get().ListenAddr)
}
