//go:build !windows

package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/google/renameio/v2"
)

// AtomicFilePersister persists files to the local disk so that readers
// either see the previous file or the complete new one, never a partial
// write. Installed driver binaries go through it.
type AtomicFilePersister struct {
	// Mode is the permission of the persisted file. Zero means 0o600.
	Mode fs.FileMode
}

// Persist writes data to a pending file next to path and then
// atomically replaces path with it.
func (a *AtomicFilePersister) Persist(ctx context.Context, path string, data io.Reader) error {
	cp, err := prepare(path)
	if err != nil {
		return err
	}

	pf, err := renameio.NewPendingFile(cp, renameio.WithPermissions(modeOrDefault(a.Mode)))
	if err != nil {
		return fmt.Errorf("creating a pending file for %q: %w", cp, err)
	}
	defer func() {
		// no-op once the file was committed.
		_ = pf.Cleanup()
	}()

	if _, err = io.Copy(pf, &ctxReader{ctx: ctx, r: data}); err != nil {
		return fmt.Errorf("writing %q: %w", cp, err)
	}
	if err = pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %q: %w", cp, err)
	}

	return nil
}
