// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Target specifies all function that are needed to be implemented to extract contents from an archive
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If the file already exists and overwrite is false, an error should be returned. An
	// existing symlink at path is replaced, never written through. The size of the file should not exceed maxSize.
	// The number of bytes written is returned, also in case of an error. If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// CreateDir creates at the specified path with the specified mode. If the directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// CreateSymlink creates a symbolic link from newname to oldname. If newname already exists and overwrite is false,
	// the function returns an error. If newname already exists and overwrite is true, the existing entry is replaced.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// Lstat see docs for os.Lstat.
	Lstat(path string) (fs.FileInfo, error)

	// Chmod see docs for os.Chmod. Main purpose is to set the executable bit of extracted files.
	Chmod(name string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes. Main purpose is to restore the modification time of extracted files.
	Chtimes(name string, atime, mtime time.Time) error

	// Lchtimes sets the file times of a symlink without following it.
	Lchtimes(name string, atime, mtime time.Time) error
}

// canonicalRoot returns the absolute path of dst with all symlinks resolved.
// dst must exist.
func canonicalRoot(dst string) (string, error) {
	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("cannot resolve destination: %w", err)
	}
	return root, nil
}

// canonicalPath resolves all symlinks of the longest existing ancestor of p
// and appends the not yet existing remainder.
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// isWithin reports whether p equals root or is located below it.
func isWithin(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(p, prefix)
}

// securePath joins the slash separated name to the canonical root and
// verifies that the canonical form of the result stays inside root. It
// returns the joined, not resolved path, so that the caller operates on the
// name itself. An escape is reported as [ErrPathTraversal].
func securePath(root, name string) (string, error) {
	if len(name) == 0 {
		return "", fmt.Errorf("empty name")
	}

	parts := strings.Split(name, "/")
	joined := filepath.Join(append([]string{root}, parts...)...)

	canonical, err := canonicalPath(joined)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", name, err)
	}
	if !isWithin(root, canonical) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrPathTraversal, name, canonical)
	}
	return joined, nil
}

// createDir creates the directory name below root.
func createDir(t Target, root string, name string, cfg *Config) (string, error) {
	path, err := securePath(root, name)
	if err != nil {
		return "", err
	}
	if err := t.CreateDir(path, cfg.CustomCreateDirMode()); err != nil {
		return "", err
	}
	return path, nil
}

// createFile creates the file name below root with the content of src. The
// file is executable if mode carries the owner-execute bit and is always
// readable by everyone.
func createFile(t Target, root string, name string, src io.Reader, mode fs.FileMode, maxSize int64, cfg *Config) (string, int64, error) {
	path, err := securePath(root, name)
	if err != nil {
		return "", 0, err
	}

	// ensure the parent exists, the archive may omit directory entries
	if err := t.CreateDir(filepath.Dir(path), cfg.CustomCreateDirMode()); err != nil {
		return "", 0, fmt.Errorf("cannot create directory: %w", err)
	}

	perm := extractedFileMode(mode)
	n, err := t.CreateFile(path, src, perm, cfg.Overwrite(), maxSize)
	if err != nil {
		return path, n, err
	}

	// an overwritten file keeps its old mode otherwise
	if err := t.Chmod(path, perm); err != nil {
		return path, n, fmt.Errorf("cannot set file mode: %w", err)
	}
	return path, n, nil
}

// createSymlink creates the symlink name below root pointing to linkTarget.
// Only relative link targets that resolve inside root are accepted.
func createSymlink(t Target, root string, name string, linkTarget string, cfg *Config) (string, error) {
	// check if symlink extraction is denied
	if cfg.DenySymlinkExtraction() {
		return "", unsupportedFile(name)
	}

	if len(linkTarget) == 0 {
		return "", fmt.Errorf("symlink %s without target", name)
	}

	// check if link target is absolute path
	if filepath.IsAbs(linkTarget) || strings.HasPrefix(linkTarget, "/") {
		return "", fmt.Errorf("%w: symlink %s with absolute target %s", ErrPathTraversal, name, linkTarget)
	}

	path, err := securePath(root, name)
	if err != nil {
		return "", err
	}

	// check link target for traversal
	up, rest, ok := splitLinkTarget(linkTarget)
	if !ok {
		return "", fmt.Errorf("%w: symlink %s with target %s climbs after a name", ErrPathTraversal, name, linkTarget)
	}
	base, err := canonicalPath(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("cannot resolve symlink directory: %w", err)
	}
	for ; up > 0; up-- {
		base = filepath.Dir(base)
	}
	resolved, err := canonicalPath(filepath.Join(append([]string{base}, rest...)...))
	if err != nil {
		return "", fmt.Errorf("cannot resolve symlink target: %w", err)
	}
	if !isWithin(root, resolved) {
		return "", fmt.Errorf("%w: symlink %s points to %s", ErrPathTraversal, name, resolved)
	}

	if err := t.CreateDir(filepath.Dir(path), cfg.CustomCreateDirMode()); err != nil {
		return "", fmt.Errorf("cannot create directory: %w", err)
	}
	return path, t.CreateSymlink(linkTarget, path, cfg.Overwrite())
}

// splitLinkTarget splits a relative link target into its leading ".." steps
// and the named components that follow. A ".." after a named component is
// refused: the name may be a symlink, now or after a later entry, and the
// kernel resolves the ".." against its target rather than textually.
func splitLinkTarget(linkTarget string) (int, []string, bool) {
	var up int
	var rest []string
	for _, c := range strings.Split(linkTarget, "/") {
		switch c {
		case "", ".":
		case "..":
			if len(rest) > 0 {
				return 0, nil, false
			}
			up++
		default:
			rest = append(rest, c)
		}
	}
	return up, rest, true
}

// extractedFileMode maps an archive mode to 0755 for owner-executable
// entries and to 0644 otherwise.
func extractedFileMode(mode fs.FileMode) fs.FileMode {
	if mode&0100 != 0 {
		return 0755
	}
	return 0644
}
