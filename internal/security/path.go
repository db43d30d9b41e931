package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and paths that still climb
// out of their starting point after cleaning.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains NUL byte")
	}

	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ValidateFileName checks that name is a single path element, suitable for
// storing directly inside a managed directory.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid file name: %s", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("file name must not contain separators: %s", name)
	}
	return nil
}

// ContainedPath joins name onto baseDir and returns the result only if it
// stays inside baseDir.
func ContainedPath(baseDir, name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}

	cleanBase := filepath.Clean(baseDir)
	fullPath := filepath.Join(cleanBase, name)

	rel, err := filepath.Rel(cleanBase, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", name)
	}
	return fullPath, nil
}
