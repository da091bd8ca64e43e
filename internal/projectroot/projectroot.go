package projectroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Marker identifies the root of a project carrying grammar fixtures
const Marker = "test/fixtures/fixtures.json"

// ErrNotFound is returned when no parent directory contains the marker
var ErrNotFound = errors.New("project root not found")

// Find walks up the directory tree from start until it finds a directory
// containing marker, a slash-separated path relative to that directory.
func Find(start, marker string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(marker))); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the filesystem root
			return "", fmt.Errorf("%w: no %s above %s", ErrNotFound, marker, start)
		}
		dir = parent
	}
}

// FromWorkingDir finds the fixture project containing the working directory,
// falling back to the working directory itself.
func FromWorkingDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root, err := Find(wd, Marker)
	if errors.Is(err, ErrNotFound) {
		return wd, nil
	}
	return root, err
}

// Module walks up from the caller's source file to the directory holding go.mod
func Module() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}
	return Find(filepath.Dir(filename), "go.mod")
}
