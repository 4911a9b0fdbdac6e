// Package fsx holds the file moves and writes that must not leave half-done
// state behind.
package fsx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Swapped in tests to simulate cross-device renames.
var renameFunc = os.Rename

// MoveInto moves src into dir (created if absent) under its base name and
// returns the destination. An existing file of that name is never replaced;
// the move fails with fs.ErrExist instead. Moves across file systems fall back
// to copy and remove.
func MoveInto(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("moving %s: %w", filepath.Base(src), fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	err := renameFunc(src, dst)
	if err == nil {
		return dst, nil
	}
	if !isEXDEV(err) {
		return "", err
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("copying %s across devices: %w", filepath.Base(src), err)
	}
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic replaces path with data via a temp file in the same
// directory, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return renameFunc(tmpName, path)
}
