package storage

import (
	"fmt"
	"os"
)

// Dir manages a directory handed to a browser, such as a download or
// profile directory. A directory created by Make is temporary and is
// removed by Cleanup, a directory given by the user is left alone.
type Dir struct {
	Dir    string
	remove bool
}

// Make uses dir if it isn't empty, creating it if needed. Otherwise it
// creates a temporary directory under tmpDir (or the OS default)
// using the given prefix.
func (d *Dir) Make(tmpDir string, dir string, prefix string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
		d.Dir = dir
		return nil
	}

	var err error
	if d.Dir, err = os.MkdirTemp(tmpDir, prefix+"*"); err != nil {
		return fmt.Errorf("creating a temporary directory: %w", err)
	}
	d.remove = true

	return nil
}

// IsTemporary reports whether Cleanup will remove the directory.
func (d *Dir) IsTemporary() bool {
	return d.remove
}

// Cleanup removes the directory if it was created by Make.
func (d *Dir) Cleanup() error {
	if d == nil || !d.remove {
		return nil
	}
	d.remove = false
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing directory %q: %w", d.Dir, err)
	}
	return nil
}
