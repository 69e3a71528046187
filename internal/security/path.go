// Package security validates file names and storage paths crossing the
// document intake surfaces.
package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrPathOutsideBase = errors.New("path escapes storage directory")
	ErrSymlinkEscape   = errors.New("symlink escape detected")
	ErrInvalidPath     = errors.New("invalid path")
)

// Channel uploads arrive with arbitrary names, sometimes percent-encoded.
var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"..%2f",
	"%2f..",
	"..\\",
	"\\..\\",
}

// ValidatePathInBase resolves path against base and returns the cleaned
// absolute path, or an error when it points outside base. Symlinks inside
// base must also resolve inside base.
func ValidatePathInBase(path, base string) (string, error) {
	if containsTraversalPattern(path) {
		return "", ErrPathTraversal
	}

	basePath := filepath.Clean(base)
	if !filepath.IsAbs(basePath) {
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return "", ErrInvalidPath
		}
		basePath = abs
	}

	var target string
	if filepath.IsAbs(path) {
		target = filepath.Clean(path)
	} else {
		target = filepath.Join(basePath, path)
	}
	target = filepath.Clean(target)

	if err := checkSymlinkEscape(target, basePath); err != nil {
		return "", err
	}

	if !strings.HasPrefix(target, basePath+string(os.PathSeparator)) && target != basePath {
		return "", ErrPathOutsideBase
	}

	return target, nil
}

// IsPathInBase reports whether path stays inside base.
func IsPathInBase(path, base string) bool {
	_, err := ValidatePathInBase(path, base)
	return err == nil
}

func containsTraversalPattern(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func checkSymlinkEscape(target, basePath string) error {
	rel, err := filepath.Rel(basePath, target)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(rel, "..") {
		return ErrPathOutsideBase
	}

	current := basePath
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return ErrInvalidPath
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				continue
			}
			resolved = filepath.Clean(resolved)
			if !strings.HasPrefix(resolved, basePath+string(os.PathSeparator)) && resolved != basePath {
				return ErrSymlinkEscape
			}
		}
	}
	return nil
}

const maxFilenameLen = 160

// SanitizeFilename reduces an untrusted upload name to a safe display name:
// no directory components, no control characters, bounded length. An empty
// or fully-stripped name becomes "document".
func SanitizeFilename(name string) string {
	// Uploads from Windows clients separate with backslashes.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())

	if name == "" || name == "." || name == ".." || name == "/" {
		return "document"
	}
	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}
