package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicFilePersister persists files to the local disk by writing a
// temporary file in the same directory and renaming it over path.
// renameio does not support Windows, so this is the best effort there.
type AtomicFilePersister struct {
	// Mode is the permission of the persisted file. Zero means 0o600.
	Mode fs.FileMode
}

// Persist writes data to a temporary file and renames it to path.
func (a *AtomicFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	cp, err := prepare(path)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(cp), "."+filepath.Base(cp)+"*")
	if err != nil {
		return fmt.Errorf("creating a temporary file for %q: %w", cp, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = io.Copy(f, &ctxReader{ctx: ctx, r: data}); err != nil {
		return fmt.Errorf("writing %q: %w", cp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", f.Name(), err)
	}
	if err = os.Chmod(f.Name(), modeOrDefault(a.Mode)); err != nil {
		return fmt.Errorf("setting permissions of %q: %w", f.Name(), err)
	}
	if err = os.Rename(f.Name(), cp); err != nil {
		return fmt.Errorf("replacing %q: %w", cp, err)
	}

	return nil
}
