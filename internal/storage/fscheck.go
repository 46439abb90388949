package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem reports a state path on a mount where SQLite's file
// locking cannot be trusted.
var ErrNetworkFilesystem = errors.New("sqlite state must be on a local filesystem")

// errDetectUnsupported is returned by detectors on platforms without statfs.
var errDetectUnsupported = errors.New("filesystem detection unsupported")

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// CheckLocalFilesystem fails with ErrNetworkFilesystem when path, or its
// nearest existing parent, lives on a network mount.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, detectFilesystemType)
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	existing, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve state path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if errors.Is(err, errDetectUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if _, network := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; network {
		return fmt.Errorf("%w: %q is on %s; point state.path at local disk", ErrNetworkFilesystem, path, fsType)
	}
	return nil
}

// nearestExistingPath walks up from path until it finds something that
// exists. The database file and its directory may not be created yet.
func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}
