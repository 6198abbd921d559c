// Package pathutil confines file reads to a set of allowed directories.
package pathutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxDefinitionSize bounds the graph definition files ReadDefinition accepts.
const MaxDefinitionSize = 1 << 20

var (
	// ErrOutsideAllowed is returned for paths that resolve outside every
	// allowed directory.
	ErrOutsideAllowed = errors.New("outside allowed directories")

	// ErrTooLarge is returned by ReadDefinition for oversized files.
	ErrTooLarge = errors.New("file too large")
)

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/models/loop.cld" becomes ".../models/loop.cld".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath checks that path lies within one of allowedDirs after
// cleaning and symlink resolution, and returns the resolved absolute path.
func ValidatePath(path string, allowedDirs []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return "", fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// The file itself may not exist, so only its directory is resolved.
	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExistingParent(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("path validation failed: %q is %w", RedactPath(absPath), ErrOutsideAllowed)
}

// ReadDefinition validates path against allowedDirs and reads it, refusing
// directories and files larger than MaxDefinitionSize.
func ReadDefinition(path string, allowedDirs []string) (string, error) {
	resolved, err := ValidatePath(path, allowedDirs)
	if err != nil {
		return "", err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", RedactPath(resolved), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", RedactPath(resolved), err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read %s: is a directory", RedactPath(resolved))
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxDefinitionSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", RedactPath(resolved), err)
	}
	if len(data) > MaxDefinitionSize {
		return "", fmt.Errorf("read %s: %w (limit %d bytes)", RedactPath(resolved), ErrTooLarge, MaxDefinitionSize)
	}
	return string(data), nil
}

// DefaultAllowedDirs returns the working directory, the only place file
// sources may be read from unless configured otherwise.
func DefaultAllowedDirs() ([]string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return []string{wd}, nil
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path is base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
