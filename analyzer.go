// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// prefixBlacklist holds name fragments of root directories that usually wrap
// tooling rather than the payload of an archive.
var prefixBlacklist = []string{
	"installer",
	"setup",
	"temp",
	"tmp",
	"extract",
	"package",
	"archive",
	"download",
}

// DetectExtractionPrefix selects the root directory of an archive whose
// content should be unwrapped. names are the entry names of the archive,
// archiveName is its file name.
//
// Archives with files at the root are extracted flat and yield "". A single
// root directory is returned as "dir/". Out of several root directories,
// blacklisted names are dropped and the one related to the archive name is
// preferred, otherwise the shortest (ties broken lexicographically). If the
// blacklist drops every directory, the shortest of all of them is chosen.
func DetectExtractionPrefix(names []string, archiveName string) string {
	seen := make(map[string]bool)
	var dirs []string
	for _, name := range names {
		name = strings.TrimLeft(normalizeEntryName(name), "/")
		if len(name) == 0 {
			continue
		}

		idx := strings.IndexByte(name, '/')
		if idx < 0 {
			// a root file means the archive is not wrapped
			return ""
		}

		dir := name[:idx]
		if dir == "." || dir == ".." || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	switch len(dirs) {
	case 0:
		return ""
	case 1:
		return dirs[0] + "/"
	}

	sortShortestFirst(dirs)

	var candidates []string
	for _, dir := range dirs {
		if !isBlacklisted(dir) {
			candidates = append(candidates, dir)
		}
	}
	if len(candidates) == 0 {
		return dirs[0] + "/"
	}

	if base := archiveBaseName(archiveName); len(base) > 0 {
		for _, c := range candidates {
			lc := strings.ToLower(c)
			if strings.Contains(base, lc) || strings.Contains(lc, base) {
				return c + "/"
			}
		}
	}

	return candidates[0] + "/"
}

// AnalyzeArchive lists the entries of the archive at path and returns the
// extraction prefix chosen by [DetectExtractionPrefix]. Archives that cannot
// be read yield "".
func AnalyzeArchive(ctx context.Context, path string, cfg *Config) string {
	if cfg == nil {
		cfg = NewConfig()
	}
	if ctx.Err() != nil {
		return ""
	}

	f, err := os.Open(path)
	if err != nil {
		cfg.Logger().Warn("cannot open archive for analysis", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		cfg.Logger().Warn("cannot stat archive for analysis", "path", path, "error", err)
		return ""
	}

	ar, err := openArchiveReader(f, stat.Size(), filepath.Base(path), cfg)
	if err != nil {
		cfg.Logger().Warn("cannot analyze archive", "path", path, "error", err)
		return ""
	}
	defer ar.Close()

	names, err := ar.names()
	if err != nil {
		cfg.Logger().Warn("cannot list archive entries", "path", path, "error", err)
		return ""
	}

	prefix := DetectExtractionPrefix(names, filepath.Base(path))
	cfg.Logger().Debug("detected extraction prefix", "path", path, "prefix", prefix)
	return prefix
}

func isBlacklisted(dir string) bool {
	lower := strings.ToLower(dir)
	for _, token := range prefixBlacklist {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// sortShortestFirst orders names by length, then lexicographically.
func sortShortestFirst(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
}

// archiveBaseName returns the lower case file name without its extensions,
// e.g. "mygame" for "MyGame.tar.gz".
func archiveBaseName(name string) string {
	base := strings.ToLower(filepath.Base(name))
	for {
		ext := filepath.Ext(base)
		if len(ext) == 0 || len(ext) > 5 || ext == base {
			break
		}
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}
