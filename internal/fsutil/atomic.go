// SPDX-License-Identifier: MIT

// Package fsutil provides durable atomic file writes.
package fsutil

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeci/buildmetad/internal/log"
	"github.com/google/renameio/v2"
)

// WriteJSONAtomic marshals v and writes it to path with full durability
// guarantees: temp file, fsync, atomic rename. Readers never observe a
// partially written file.
func WriteJSONAtomic(ctx context.Context, path string, v any) error {
	logger := log.FromContext(ctx)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if not committed
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic)
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}

	return nil
}
