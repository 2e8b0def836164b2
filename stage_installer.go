// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// entry prefixes inside the data zip of an installer
const (
	gamePrefix    = "data/noarch/game/"
	supportPrefix = "data/noarch/support/"
)

// progress points of the installer stage
const (
	progressHeader     = 0.01
	progressProbe      = 0.02
	progressCopyData   = 0.03
	progressProbeData  = 0.09
	progressExtraction = 0.10
)

// InstallerStage unpacks a makeself installer. The game payload ends up in
// <Destination>/<install dir>/<game name>.
type InstallerStage struct {
	// Source is the path of the .sh installer
	Source string

	// Destination is the output directory
	Destination string

	// Config may be nil
	Config *Config
}

// Name implements [Stage].
func (s *InstallerStage) Name() string {
	return "installer"
}

// Run implements [Stage].
func (s *InstallerStage) Run(ctx context.Context, _ *State, report ProgressFunc) (StageOutput, error) {
	cfg := s.Config
	if cfg == nil {
		cfg = NewConfig()
	}
	if report == nil {
		report = func(float64, string) {}
	}
	if len(s.Source) == 0 || len(s.Destination) == 0 {
		return nil, errMissingStageInput
	}

	report(progressHeader, "reading installer header")
	a, err := OpenArchive(s.Source, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	ws, err := newWorkspace(cfg)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	report(progressProbe, "probing installer archive")
	found := probeFindings{}
	installerErr := a.probeInstaller(ctx, ws, found)
	if isFatalProbeError(installerErr) {
		return nil, installerErr
	}

	report(progressCopyData, "copying game data")
	dataPath, err := ws.dataSegment(ctx, a)
	if err != nil {
		return nil, err
	}

	report(progressProbeData, "probing game data")
	if len(found.missing()) > 0 {
		if err := a.probeData(ctx, ws, found, installerErr); err != nil {
			return nil, err
		}
	}
	probed := found.result(dataPath)

	gameDir := GameDir(s.Destination, probed.Metadata.DisplayName(installerBaseName(s.Source)), cfg)
	cfg.Logger().Info("installing game", "installer", s.Source, "destination", gameDir)

	err = ExtractArchive(ctx, dataPath, gamePrefix, gameDir, cfg, func(fraction float64, message string) {
		report(progressExtraction+(1-progressExtraction)*fraction, message)
	})
	if err != nil {
		return nil, fmt.Errorf("cannot extract game data: %w", err)
	}

	supportDir := filepath.Join(gameDir, "support")
	if err := ExtractArchive(ctx, dataPath, supportPrefix, supportDir, cfg, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		cfg.Logger().Warn("cannot extract support files", "error", err)
	}

	out := &InstallerOutput{
		GameDir:  gameDir,
		Metadata: probed.Metadata,
		Header:   a.Layout().Header,
	}
	if len(probed.IconPath) > 0 {
		out.IconPath = persistIcon(probed.IconPath, filepath.Join(supportDir, "icon.png"), cfg)
		if out.Metadata != nil {
			out.Metadata.IconPath = out.IconPath
		}
	}

	report(1, "game installed")
	return out, nil
}

// GameDir returns the directory a game called name is installed to below
// outputDir.
func GameDir(outputDir, name string, cfg *Config) string {
	if cfg == nil {
		cfg = NewConfig()
	}
	return filepath.Join(outputDir, cfg.InstallDirName(), sanitizeDirName(name))
}

// ModLoaderDir returns the directory the mod loader is staged to.
func ModLoaderDir(outputDir string, cfg *Config) string {
	if cfg == nil {
		cfg = NewConfig()
	}
	return filepath.Join(outputDir, cfg.InstallDirName(), cfg.ModLoaderDirName())
}

// persistIcon copies the probed icon to dst unless the support files already
// provided one. It returns the icon path, or "" if no icon could be stored.
func persistIcon(src, dst string, cfg *Config) string {
	if stat, err := os.Stat(dst); err == nil && stat.Mode().IsRegular() {
		return dst
	}
	if err := copyFile(src, dst, cfg); err != nil {
		cfg.Logger().Warn("cannot store icon", "destination", dst, "error", err)
		return ""
	}
	return dst
}

// copyFile writes the content of src to dst through [TargetDisk].
func copyFile(src, dst string, cfg *Config) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	t := NewTargetDisk()
	if err := t.CreateDir(filepath.Dir(dst), cfg.CustomCreateDirMode()); err != nil {
		return err
	}
	_, err = t.CreateFile(dst, f, 0644, true, -1)
	return err
}

// installerBaseName returns the file name of the installer without the .sh
// extension.
func installerBaseName(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".sh") {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// sanitizeDirName makes name usable as a single directory name.
func sanitizeDirName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if len(name) == 0 {
		return "game"
	}
	return name
}
