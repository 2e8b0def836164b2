// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// probe sources
const (
	sourceInstaller = "installer"
	sourceData      = "data"
)

// targetKind identifies an entry the probe recovers.
type targetKind int

const (
	targetMetadata targetKind = iota
	targetIcon
	targetConfig
)

// lookupTarget describes how an entry is found by either lookup strategy.
type lookupTarget struct {
	kind  targetKind
	exact string                  // path for exact lookups
	file  string                  // name of the copy in the workspace
	match func(name string) bool // rule for suffix scans
}

var probeTargets = []lookupTarget{
	{
		kind:  targetMetadata,
		exact: "data/noarch/gameinfo",
		file:  "gameinfo",
		match: func(name string) bool { return strings.HasSuffix(name, "gameinfo") },
	},
	{
		kind:  targetIcon,
		exact: "data/noarch/support/icon.png",
		file:  "icon.png",
		match: func(name string) bool {
			return strings.HasSuffix(name, "icon.png") && strings.Contains(name, "support")
		},
	},
	{
		kind:  targetConfig,
		exact: "scripts/config.lua",
		file:  "config.lua",
		match: func(name string) bool { return strings.HasSuffix(name, "scripts/config.lua") },
	},
}

// foundEntry is a probed entry copied into the workspace.
type foundEntry struct {
	path   string
	source string
}

// probeFindings collects the entries found so far.
type probeFindings map[targetKind]foundEntry

// missing returns the targets that are still needed. The config file only
// matters as long as no metadata was found.
func (f probeFindings) missing() []lookupTarget {
	var pending []lookupTarget
	for _, t := range probeTargets {
		if _, ok := f[t.kind]; ok {
			continue
		}
		if _, ok := f[targetMetadata]; ok && t.kind == targetConfig {
			continue
		}
		pending = append(pending, t)
	}
	return pending
}

// ProbeResult holds what the probe recovered from an installer. Paths point
// into the working directory passed to [Archive.Probe].
type ProbeResult struct {
	// Metadata is the parsed gameinfo, or a record with only the id taken
	// from scripts/config.lua. It is nil if neither was found.
	Metadata *GameMetadata `json:"metadata"`

	// MetadataSource is "installer" or "data", depending on the payload
	// the metadata was found in
	MetadataSource string `json:"metadata_source,omitempty"`

	// IconPath is the copy of the game icon, empty if none was found
	IconPath string `json:"icon_path,omitempty"`

	// IconSource is "installer" or "data"
	IconSource string `json:"icon_source,omitempty"`

	// DataPath is the copy of the data segment if it was materialized
	DataPath string `json:"data_path,omitempty"`
}

// Probe recovers the gameinfo record and the icon of the installer. The
// installer segment is scanned first; if an entry is still missing, the data
// segment is copied to workDir and searched by exact path, then by suffix.
//
// A payload that is not a supported archive is skipped. Only if both
// payloads are unreadable an error wrapping [ErrFormatMismatch] is returned.
// Missing entries are not an error; the corresponding fields stay empty.
func (a *Archive) Probe(ctx context.Context, workDir string) (*ProbeResult, error) {
	ws := &workspace{dir: workDir, cfg: a.cfg}
	found := probeFindings{}

	installerErr := a.probeInstaller(ctx, ws, found)
	if isFatalProbeError(installerErr) {
		return nil, installerErr
	}
	if len(found.missing()) > 0 {
		if err := a.probeData(ctx, ws, found, installerErr); err != nil {
			return nil, err
		}
	}
	return found.result(ws.dataPath), nil
}

// probeInstaller scans the installer segment. A returned error only aborts
// the probe if [isFatalProbeError] reports so, otherwise it explains why the
// segment could not be read.
func (a *Archive) probeInstaller(ctx context.Context, ws *workspace, found probeFindings) error {
	seg := a.layout.InstallerSegment()
	ar, err := openArchiveReader(a.OpenSegment(seg), seg.Length, "", a.cfg)
	if err != nil {
		a.cfg.Logger().Warn("installer segment is not a supported archive", "error", err)
		return err
	}
	defer ar.Close()

	a.cfg.Logger().Debug("scanning installer segment", "type", ar.Type())
	err = suffixScan(ctx, ar.walker, found, ws, sourceInstaller)
	if err != nil && !isFatalProbeError(err) {
		a.cfg.Logger().Warn("installer segment is corrupt", "error", err)
	}
	return err
}

// probeData searches the data segment for the missing targets.
func (a *Archive) probeData(ctx context.Context, ws *workspace, found probeFindings, installerErr error) error {
	path, err := ws.dataSegment(ctx, a)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open data segment: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat data segment: %w", err)
	}

	ar, err := openArchiveReader(f, stat.Size(), "", a.cfg)
	switch {
	case errors.Is(err, ErrFormatMismatch) && installerErr != nil:
		return fmt.Errorf("no payload of the installer is readable: %w", err)
	case errors.Is(err, ErrFormatMismatch):
		a.cfg.Logger().Warn("data segment is not a supported archive", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("cannot open data segment: %w", err)
	}
	defer ar.Close()

	if ar.zr != nil {
		if err := exactLookup(ar.zr, found, ws, sourceData, a.cfg); err != nil {
			return err
		}
	}
	if len(found.missing()) == 0 {
		return nil
	}

	err = suffixScan(ctx, ar.walker, found, ws, sourceData)
	if err != nil && !isFatalProbeError(err) {
		a.cfg.Logger().Warn("data segment is corrupt", "error", err)
		return nil
	}
	return err
}

// exactLookup opens the missing targets by their full path. Absent entries
// are logged and skipped.
func exactLookup(fsys fs.FS, found probeFindings, ws *workspace, source string, cfg *Config) error {
	for _, t := range found.missing() {
		f, err := fsys.Open(t.exact)
		if err != nil {
			cfg.Logger().Debug("entry not found", "path", t.exact, "source", source, "error", err)
			continue
		}

		stat, err := f.Stat()
		if err != nil || !stat.Mode().IsRegular() {
			f.Close()
			cfg.Logger().Debug("entry is not a regular file", "path", t.exact, "source", source)
			continue
		}

		path, err := ws.writeFile(source+"-"+t.file, f, stat.Size())
		f.Close()
		if err != nil {
			if errors.Is(err, errWorkspace) {
				return err
			}
			cfg.Logger().Warn("cannot read entry", "path", t.exact, "source", source, "error", err)
			continue
		}
		found[t.kind] = foundEntry{path: path, source: source}
		cfg.Logger().Debug("found entry", "path", t.exact, "source", source)
	}
	return nil
}

// suffixScan walks the archive forward and copies every entry that matches
// a missing target. It stops as soon as nothing is missing.
func suffixScan(ctx context.Context, w archiveWalker, found probeFindings, ws *workspace, source string) error {
	for pending := found.missing(); len(pending) > 0; pending = found.missing() {
		if err := ctx.Err(); err != nil {
			return err
		}

		ae, err := w.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cannot read next entry: %w", err)
		}
		if ae == nil || !ae.IsRegular() {
			continue
		}

		name := normalizeEntryName(ae.Name())
		for _, t := range pending {
			if !t.match(name) {
				continue
			}
			if err := copyEntry(ae, t, found, ws, source); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// copyEntry stores the declared size of ae in the workspace.
func copyEntry(ae archiveEntry, t lookupTarget, found probeFindings, ws *workspace, source string) error {
	rc, err := ae.Open()
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", ae.Name(), err)
	}
	defer rc.Close()

	path, err := ws.writeFile(source+"-"+t.file, rc, ae.Size())
	if err != nil {
		return err
	}
	found[t.kind] = foundEntry{path: path, source: source}
	ws.cfg.Logger().Debug("found entry", "name", ae.Name(), "source", source)
	return nil
}

// result parses the probed files.
func (f probeFindings) result(dataPath string) *ProbeResult {
	res := &ProbeResult{DataPath: dataPath}

	if e, ok := f[targetMetadata]; ok {
		res.Metadata = ReadMetadataFile(e.path)
		res.MetadataSource = e.source
	}

	if res.Metadata == nil {
		if e, ok := f[targetConfig]; ok {
			if id := readConfigID(e.path); len(id) > 0 {
				res.Metadata = &GameMetadata{ID: id}
				res.MetadataSource = e.source
			}
		}
	}

	if e, ok := f[targetIcon]; ok {
		res.IconPath = e.path
		res.IconSource = e.source
		if res.Metadata != nil {
			res.Metadata.IconPath = e.path
		}
	}

	return res
}

// readConfigID returns the id of a scripts/config.lua file, or "".
func readConfigID(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	return parseConfigID(f)
}

// isFatalProbeError reports whether err must abort the probe instead of
// being treated as an unreadable payload.
func isFatalProbeError(err error) bool {
	return errors.Is(err, errWorkspace) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
