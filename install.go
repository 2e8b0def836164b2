// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
)

// ProgressSink receives the progress of an installation, e.g. to update a
// user interface. Calls are made on the goroutine that started the
// installation.
type ProgressSink interface {
	Progress(text string, percent int)
	Error(text string)
	Complete(primary, secondary string)
}

// InstallResult describes an installed game.
type InstallResult struct {
	GameDir      string        `json:"game_dir"`
	ModLoaderDir string        `json:"mod_loader_dir,omitempty"`
	Metadata     *GameMetadata `json:"metadata,omitempty"`
	IconPath     string        `json:"icon_path,omitempty"`
}

// weights of the stages of a game installation with mod loader
const (
	installerWeight = 0.7
	modLoaderWeight = 0.3
)

// InstallGame unpacks the installer at shPath below outputDir. sink may be
// nil.
func InstallGame(ctx context.Context, shPath, outputDir string, sink ProgressSink, opts ...ConfigOption) (*InstallResult, error) {
	cfg := NewConfig(opts...)
	p, err := NewBuilder(cfg).
		AddStage(&InstallerStage{Source: shPath, Destination: outputDir, Config: cfg}, 1).
		Build()
	if err != nil {
		return nil, err
	}
	return runInstall(ctx, p, sink)
}

// InstallGameWithModLoader unpacks the installer at shPath and then stages
// the archive at modLoaderPath into the mod loader directory. The root
// directory of the mod loader archive is unwrapped as chosen by
// [DetectExtractionPrefix].
func InstallGameWithModLoader(ctx context.Context, shPath, modLoaderPath, outputDir string, sink ProgressSink, opts ...ConfigOption) (*InstallResult, error) {
	cfg := NewConfig(opts...)
	p, err := NewBuilder(cfg).
		AddStage(&InstallerStage{Source: shPath, Destination: outputDir, Config: cfg}, installerWeight).
		AddStage(&ArchiveStage{
			Source:       modLoaderPath,
			Destination:  ModLoaderDir(outputDir, cfg),
			DetectPrefix: true,
			Config:       cfg,
		}, modLoaderWeight).
		Build()
	if err != nil {
		return nil, err
	}
	return runInstall(ctx, p, sink)
}

func runInstall(ctx context.Context, p *Pipeline, sink ProgressSink) (*InstallResult, error) {
	state, err := p.Run(ctx, sinkListener{sink: sink})
	if err != nil {
		return nil, err
	}
	return newInstallResult(state), nil
}

func newInstallResult(state *State) *InstallResult {
	res := &InstallResult{}
	if out, ok := state.Installer(); ok {
		res.GameDir = out.GameDir
		res.Metadata = out.Metadata
		res.IconPath = out.IconPath
	}
	if out, ok := state.Archive(); ok {
		res.ModLoaderDir = out.Dir
	}
	return res
}

// sinkListener forwards pipeline events to a [ProgressSink].
type sinkListener struct {
	sink ProgressSink
}

func (l sinkListener) OnProgress(e Event) {
	if l.sink != nil {
		l.sink.Progress(e.Message, int(math.Floor(e.Percent)))
	}
}

func (l sinkListener) OnError(e Event) {
	if l.sink != nil {
		l.sink.Error(e.Message)
	}
}

func (l sinkListener) OnComplete(e Event) {
	if l.sink == nil {
		return
	}
	res := newInstallResult(e.State)
	l.sink.Progress(e.Message, 100)
	l.sink.Complete(res.GameDir, res.ModLoaderDir)
}

// Inspect reads the metadata of the installer at shPath without installing
// it. If iconDir is not empty, the icon is copied there and its path is set
// in the returned record. The result is nil if the installer carries neither
// metadata nor an icon.
func Inspect(ctx context.Context, shPath, iconDir string, opts ...ConfigOption) (*GameMetadata, error) {
	cfg := NewConfig(opts...)

	a, err := OpenArchive(shPath, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	ws, err := newWorkspace(cfg)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	probed, err := a.Probe(ctx, ws.dir)
	if err != nil {
		return nil, err
	}

	m := probed.Metadata
	if len(probed.IconPath) == 0 {
		if m != nil {
			m.IconPath = ""
		}
		return m, nil
	}
	if m == nil {
		m = &GameMetadata{}
	}
	m.IconPath = ""

	if len(iconDir) > 0 {
		name := sanitizeDirName(m.DisplayName(installerBaseName(shPath))) + ".png"
		dst := filepath.Join(iconDir, name)
		if err := copyFile(probed.IconPath, dst, cfg); err != nil {
			return nil, fmt.Errorf("cannot store icon: %w", err)
		}
		m.IconPath = dst
	}
	return m, nil
}
