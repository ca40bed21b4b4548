package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePersister writes artifacts such as screenshots and driver binaries.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister writes straight to path on the local disk,
// truncating whatever was there. Screenshots go through it.
type LocalFilePersister struct {
	// Mode is the permission of a newly created file. Zero means 0o600.
	Mode fs.FileMode
}

// Persist copies data into path, stopping early if ctx is done.
func (l *LocalFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	cp, err := prepare(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, modeOrDefault(l.Mode))
	if err != nil {
		return fmt.Errorf("opening %q: %w", cp, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %q: %w", cp, cerr)
		}
	}()

	if _, err = io.Copy(f, &ctxReader{ctx: ctx, r: data}); err != nil {
		return fmt.Errorf("writing %q: %w", cp, err)
	}

	return nil
}

// prepare cleans path and makes sure its parent directory exists.
func prepare(path string) (string, error) {
	cp := filepath.Clean(path)
	dir := filepath.Dir(cp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %q: %w", dir, err)
	}

	return cp, nil
}

func modeOrDefault(m fs.FileMode) fs.FileMode {
	if m == 0 {
		return 0o600
	}
	return m
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p) //nolint:wrapcheck
}
