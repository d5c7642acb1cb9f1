// Package state owns the on-disk runtime layout under the data path:
//
//	<data>/store            pebble keyspace
//	<data>/state/retention  maintenance sweep artifacts
//	<data>/state/crash      crash dumps
//	<data>/state/abort      machine-readable exit requests
//	<data>/state/tmp        scratch space for atomic writes
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// StorePath returns the pebble directory under dataPath.
func StorePath(dataPath string) string {
	return filepath.Join(dataPath, "store")
}

// EnsureStateDirs creates the canonical layout under dataPath. Paths
// must not be symlinks and must not be group- or other-writable; the
// data dir holds message history and the at-rest key material.
func EnsureStateDirs(dataPath string) error {
	statePath := filepath.Join(dataPath, "state")
	paths := []string{
		StorePath(dataPath),
		filepath.Join(statePath, "retention"),
		filepath.Join(statePath, "crash"),
		filepath.Join(statePath, "abort"),
		filepath.Join(statePath, "tmp"),
	}

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", p, err)
		}
		if fi, err := os.Lstat(p); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", p)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", p)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", p)
			}
		}
		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", p, err)
		}
		// writability probe
		tmp, err := os.CreateTemp(p, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", p, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}

// WriteArtifact atomically writes a runtime artifact under
// <data>/state/<kind>/<name> via temp-and-rename.
func WriteArtifact(dataPath, kind, name string, data []byte) (string, error) {
	dir := filepath.Join(dataPath, "state", kind)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	tmp.Sync()
	tmp.Close()

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	_ = os.Chmod(dst, 0o600)
	return dst, nil
}
